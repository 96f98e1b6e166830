// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"path/filepath"
	"testing"
)

func TestRepackerAddAllReadsToOutput(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.pod5")

	w := NewWriter(nil)
	reads := []Read{newTestRead(t, 100), newTestRead(t, 200), newTestRead(t, 0)}
	for _, r := range reads {
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead: %v", err)
		}
	}
	if err := w.Close(srcPath); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := Open(srcPath, nil)
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, "dst.pod5")
	rp := NewRepacker(nil)
	h := rp.AddOutput(NewWriter(nil), dstPath)

	if err := rp.AddAllReadsToOutput(h, src); err != nil {
		t.Fatalf("AddAllReadsToOutput: %v", err)
	}
	if err := rp.SetOutputFinished(h); err != nil {
		t.Fatalf("SetOutputFinished: %v", err)
	}
	if err := rp.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !rp.IsComplete() {
		t.Fatalf("IsComplete() = false after Finish")
	}

	dst, err := Open(dstPath, nil)
	if err != nil {
		t.Fatalf("Open dst: %v", err)
	}
	defer dst.Close()

	if dst.Len() != len(reads) {
		t.Fatalf("Len() = %d, want %d", dst.Len(), len(reads))
	}
	for _, r := range reads {
		rec, ok, err := dst.GetRead(r.ReadID)
		if err != nil || !ok {
			t.Fatalf("GetRead(%s): ok=%v err=%v", r.ReadID, ok, err)
		}
		signal, err := rec.Signal()
		if err != nil {
			t.Fatalf("Signal: %v", err)
		}
		if len(signal) != len(r.Signal) {
			t.Fatalf("signal length = %d, want %d", len(signal), len(r.Signal))
		}
	}
}

func TestRepackerAddSelectedReadsToOutput(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.pod5")

	w := NewWriter(nil)
	reads := []Read{newTestRead(t, 10), newTestRead(t, 20), newTestRead(t, 30)}
	for _, r := range reads {
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead: %v", err)
		}
	}
	if err := w.Close(srcPath); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := Open(srcPath, nil)
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, "dst.pod5")
	rp := NewRepacker(nil)
	h := rp.AddOutput(NewWriter(nil), dstPath)

	selected := []ReadID{reads[0].ReadID, reads[2].ReadID}
	if err := rp.AddSelectedReadsToOutput(h, src, selected, ReadEfficient); err != nil {
		t.Fatalf("AddSelectedReadsToOutput: %v", err)
	}
	if err := rp.SetOutputFinished(h); err != nil {
		t.Fatalf("SetOutputFinished: %v", err)
	}
	if err := rp.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	dst, err := Open(dstPath, nil)
	if err != nil {
		t.Fatalf("Open dst: %v", err)
	}
	defer dst.Close()

	if dst.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", dst.Len())
	}
	if _, ok, _ := dst.GetRead(reads[1].ReadID); ok {
		t.Fatalf("unselected read %s should not be present", reads[1].ReadID)
	}
}

func TestRepackerMissingSelectedReadFails(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.pod5")

	w := NewWriter(nil)
	if err := w.AddRead(newTestRead(t, 10)); err != nil {
		t.Fatalf("AddRead: %v", err)
	}
	if err := w.Close(srcPath); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := Open(srcPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	rp := NewRepacker(nil)
	h := rp.AddOutput(NewWriter(nil), filepath.Join(dir, "dst.pod5"))
	defer rp.SetOutputFinished(h)

	bogus, _ := ParseReadID("00000000-0000-0000-0000-000000000099")
	err = rp.AddSelectedReadsToOutput(h, src, []ReadID{bogus}, ReadEfficient)
	if err == nil {
		t.Fatalf("expected error for missing read id")
	}
}
