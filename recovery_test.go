// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// truncateBeforeFooter simulates a writer crash: it drops everything after
// the last sectionMarker (the footer, its length field, and the closing
// magic), leaving only the four complete embedded table sections.
func truncateBeforeFooter(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	idx := bytes.LastIndex(data, sectionMarker[:])
	if idx < 0 {
		t.Fatalf("no section marker found in %s", path)
	}
	truncated := data[:idx+len(sectionMarker)]
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRecoverTruncatedFooter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crashed.pod5")

	w := NewWriter(nil)
	want := newTestRead(t, 256)
	if err := w.AddRead(want); err != nil {
		t.Fatalf("AddRead: %v", err)
	}
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	truncateBeforeFooter(t, path)

	if _, err := Open(path, nil); err == nil {
		t.Fatalf("expected truncated file to fail opening normally")
	}

	outPath := filepath.Join(dir, "recovered.pod5")
	report, err := Recover(path, outPath, nil)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.AlreadyValid {
		t.Fatalf("expected AlreadyValid=false for a truncated file")
	}
	if report.ReadsRecovered != 1 {
		t.Fatalf("ReadsRecovered = %d, want 1", report.ReadsRecovered)
	}

	r, err := Open(outPath, nil)
	if err != nil {
		t.Fatalf("Open recovered file: %v", err)
	}
	defer r.Close()

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	rec, ok, err := r.GetRead(want.ReadID)
	if err != nil || !ok {
		t.Fatalf("GetRead: ok=%v err=%v", ok, err)
	}
	signal, err := rec.Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if len(signal) != len(want.Signal) {
		t.Fatalf("signal length = %d, want %d", len(signal), len(want.Signal))
	}
}

func TestRecoverAlreadyValidIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "good.pod5")

	w := NewWriter(nil)
	if err := w.AddRead(newTestRead(t, 32)); err != nil {
		t.Fatalf("AddRead: %v", err)
	}
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	outPath := filepath.Join(dir, "recovered-good.pod5")
	report, err := Recover(path, outPath, nil)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !report.AlreadyValid {
		t.Fatalf("expected AlreadyValid=true for a sealed file")
	}

	r, err := Open(outPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}
