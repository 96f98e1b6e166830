// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import "sort"

// TraversalOrder selects how PlanTraversal orders rows within a batch.
type TraversalOrder int

const (
	// ReadEfficient sorts rows within each batch ascending, minimising seek
	// backtracking when the underlying storage is read sequentially.
	ReadEfficient TraversalOrder = iota
	// OriginalOrder preserves the caller's input order within each batch,
	// letting the caller reconstruct a user-specified iteration.
	OriginalOrder
)

// Plan is the result of PlanTraversal: spec.md §4.4's three parallel
// outputs.
type Plan struct {
	// Found is the number of identifiers successfully located.
	Found int
	// PerBatchCounts has one entry per reads-table batch, giving how many
	// selected rows fall in that batch.
	PerBatchCounts []uint32
	// BatchRows is the flat, per-batch-grouped (ascending batch order) list
	// of in-batch row indices.
	BatchRows []uint32
}

type planEntry struct {
	batch      uint32
	row        uint32
	inputIndex int
}

// PlanTraversal translates ids into a per-batch row-id plan: spec.md §4.4.
// Ties on batch/row break by input index (stable within a batch for
// ReadEfficient, and OriginalOrder's definition directly). Duplicates in
// ids yield duplicate entries in the plan; the planner is not a set
// operation.
//
// Missing ids are compacted out when missingOK is true. Otherwise a missing
// id makes PlanTraversal return ErrMissingReads with a Plan that carries
// only Found (less than len(ids)) and no BatchRows/PerBatchCounts.
func (ix *readIndex) PlanTraversal(ids []ReadID, order TraversalOrder, numBatches int, missingOK bool) (Plan, error) {
	entries := make([]planEntry, 0, len(ids))
	found := 0

	for i, id := range ids {
		loc, ok := ix.get(id)
		if !ok {
			continue
		}
		found++
		entries = append(entries, planEntry{batch: loc.Batch, row: loc.Row, inputIndex: i})
	}

	if !missingOK && found != len(ids) {
		return Plan{Found: found}, ErrMissingReads
	}

	switch order {
	case ReadEfficient:
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].batch != entries[b].batch {
				return entries[a].batch < entries[b].batch
			}
			return entries[a].row < entries[b].row
		})
	case OriginalOrder:
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].batch != entries[b].batch {
				return entries[a].batch < entries[b].batch
			}
			return entries[a].inputIndex < entries[b].inputIndex
		})
	}

	perBatch := make([]uint32, numBatches)
	rows := make([]uint32, 0, len(entries))
	for _, e := range entries {
		perBatch[e.batch]++
		rows = append(rows, e.row)
	}

	return Plan{Found: found, PerBatchCounts: perBatch, BatchRows: rows}, nil
}
