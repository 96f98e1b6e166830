// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// rowLocation is where a read record lives: which reads-table batch, and
// its row within that batch.
type rowLocation struct {
	Batch uint32
	Row   uint32
}

// readIndex is the in-memory read-id -> (batch, row) mapping described by
// spec.md §3 "Index", built once at Open so random-access lookup cost is
// O(number of batches), not O(number of reads).
type readIndex struct {
	locations map[ReadID]rowLocation
}

func newReadIndex() *readIndex {
	return &readIndex{locations: make(map[ReadID]rowLocation)}
}

func (ix *readIndex) add(id ReadID, loc rowLocation) {
	ix.locations[id] = loc
}

func (ix *readIndex) get(id ReadID) (rowLocation, bool) {
	loc, ok := ix.locations[id]
	return loc, ok
}

func (ix *readIndex) len() int { return len(ix.locations) }

// encodeIndexTable serialises the index as an Arrow IPC file stream using
// indexTableSchema, so it round-trips through the same machinery as the
// three main tables instead of needing a bespoke binary parser.
func encodeIndexTable(ix *readIndex, mem memory.Allocator) ([]byte, error) {
	schema := indexTableSchema()
	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	readIDBldr := bldr.Field(0).(*array.FixedSizeBinaryBuilder)
	batchBldr := bldr.Field(1).(*array.Uint32Builder)
	rowBldr := bldr.Field(2).(*array.Uint32Builder)

	for id, loc := range ix.locations {
		idCopy := id
		readIDBldr.Append(idCopy[:])
		batchBldr.Append(loc.Batch)
		rowBldr.Append(loc.Row)
	}

	rec := bldr.NewRecord()
	defer rec.Release()

	return writeSingleBatchIPC(schema, rec)
}

// decodeIndexTable reads an index table previously written by
// encodeIndexTable out of an already-open Arrow IPC reader.
func decodeIndexTable(r *ipc.FileReader) (*readIndex, error) {
	ix := newReadIndex()
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("pod5: reading index batch %d: %w", i, err)
		}
		readIDCol := rec.Column(0).(*array.FixedSizeBinary)
		batchCol := rec.Column(1).(*array.Uint32)
		rowCol := rec.Column(2).(*array.Uint32)

		for row := 0; row < int(rec.NumRows()); row++ {
			var id ReadID
			copy(id[:], readIDCol.Value(row))
			ix.add(id, rowLocation{Batch: batchCol.Value(row), Row: rowCol.Value(row)})
		}
	}
	return ix, nil
}

// writeSingleBatchIPC writes rec as the sole record of a one-batch Arrow IPC
// file stream, returning the encoded bytes. Shared by the index table and
// by the Writer's batch flushes and run-info table.
func writeSingleBatchIPC(schema *arrow.Schema, rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema))
	if err != nil {
		return nil, err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
