// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import "testing"

func TestDictionaryAddIsStableAndDeduplicates(t *testing.T) {
	d := newDictionary[string, int]()

	a := d.add("x", 1)
	b := d.add("y", 2)
	c := d.add("x", 99) // value ignored, key already present

	if a != 0 || b != 1 {
		t.Fatalf("a=%d b=%d, want 0,1", a, b)
	}
	if c != a {
		t.Fatalf("re-adding an existing key returned %d, want %d", c, a)
	}
	if d.len() != 2 {
		t.Fatalf("len() = %d, want 2", d.len())
	}
	if d.at(0) != 1 {
		t.Fatalf("at(0) = %d, want 1 (first-write-wins)", d.at(0))
	}
}

func TestDictionaryFindAndContains(t *testing.T) {
	d := newDictionary[string, int]()
	if d.contains("missing") {
		t.Fatalf("contains() = true for a key never added")
	}
	d.add("present", 7)
	if !d.contains("present") {
		t.Fatalf("contains() = false for a key just added")
	}
	idx, ok := d.find("present")
	if !ok || idx != 0 {
		t.Fatalf("find() = (%d, %v), want (0, true)", idx, ok)
	}
	if _, ok := d.find("missing"); ok {
		t.Fatalf("find() reported a key never added as present")
	}
}

func TestRunInfoDictKeyedByAcquisitionID(t *testing.T) {
	d := newRunInfoDict()
	first := RunInfo{AcquisitionID: "acq-1", SampleID: "first"}
	second := RunInfo{AcquisitionID: "acq-1", SampleID: "second"}

	d.add(first.AcquisitionID, first)
	idx := d.add(second.AcquisitionID, second)

	if got := d.at(idx); got.SampleID != "first" {
		t.Fatalf("run-info dictionary did not keep the first write: got %q", got.SampleID)
	}
}
