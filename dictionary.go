// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

// dictionary implements the value-keyed, append-only hash table described
// by spec.md §4.2 ("Dictionary discipline"): add(obj) returns the existing
// index if the value was seen before, otherwise appends and returns the new
// index. Indices are stable for the life of the dictionary. It is not safe
// for concurrent use; callers (Writer, Repacker output) provide their own
// locking per spec.md §5.
type dictionary[K comparable, V any] struct {
	values  []V
	indices map[K]int32
}

func newDictionary[K comparable, V any]() *dictionary[K, V] {
	return &dictionary[K, V]{indices: make(map[K]int32)}
}

// add returns the index of key, inserting value under it if key is new.
func (d *dictionary[K, V]) add(key K, value V) int32 {
	if idx, ok := d.indices[key]; ok {
		return idx
	}
	idx := int32(len(d.values))
	d.values = append(d.values, value)
	d.indices[key] = idx
	return idx
}

// find returns the index of key and whether it was present.
func (d *dictionary[K, V]) find(key K) (int32, bool) {
	idx, ok := d.indices[key]
	return idx, ok
}

// contains reports whether key has already been added.
func (d *dictionary[K, V]) contains(key K) bool {
	_, ok := d.indices[key]
	return ok
}

// at returns the value stored at idx.
func (d *dictionary[K, V]) at(idx int32) V {
	return d.values[idx]
}

// len returns the number of distinct values in the dictionary.
func (d *dictionary[K, V]) len() int {
	return len(d.values)
}

// poreDict, endReasonDict and runInfoDict give the three dictionary-encoded
// columns named in spec.md §4.2 a concrete key type each: pore-type and
// end-reason dedup by full value equality (they're small, comparable
// structs/strings), run-info dedups additionally keyed by acquisition id
// per the open-policy decision recorded in DESIGN.md (first write wins).
type poreDict = dictionary[PoreType, PoreType]
type endReasonDict = dictionary[EndReason, EndReason]
type runInfoDict = dictionary[string, RunInfo]

func newPoreDict() *poreDict           { return newDictionary[PoreType, PoreType]() }
func newEndReasonDict() *endReasonDict { return newDictionary[EndReason, EndReason]() }
func newRunInfoDict() *runInfoDict     { return newDictionary[string, RunInfo]() }
