// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestPod5(t *testing.T, path string, reads []Read) {
	t.Helper()
	w := NewWriter(nil)
	for _, r := range reads {
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead: %v", err)
		}
	}
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDatasetDiscoversNestedFiles(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "batch_01")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	writeTestPod5(t, filepath.Join(root, "a.pod5"), []Read{newTestRead(t, 10)})
	writeTestPod5(t, filepath.Join(sub, "b.pod5"), []Read{newTestRead(t, 20), newTestRead(t, 30)})

	ds, err := OpenDataset([]string{root}, nil)
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	defer ds.Close()

	if len(ds.paths) != 2 {
		t.Fatalf("discovered %d files, want 2", len(ds.paths))
	}

	count, err := ds.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count() = %d, want 3", count)
	}
}

func TestDatasetGetReadWithIndex(t *testing.T) {
	root := t.TempDir()
	r1 := newTestRead(t, 11)
	r2 := newTestRead(t, 12)
	writeTestPod5(t, filepath.Join(root, "one.pod5"), []Read{r1})
	writeTestPod5(t, filepath.Join(root, "two.pod5"), []Read{r2})

	ds, err := OpenDataset([]string{root}, &DatasetOptions{BuildIndex: true})
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	defer ds.Close()

	rec, ok, err := ds.GetRead(r2.ReadID)
	if err != nil || !ok {
		t.Fatalf("GetRead: ok=%v err=%v", ok, err)
	}
	if rec.ReadID != r2.ReadID {
		t.Fatalf("got read %s, want %s", rec.ReadID, r2.ReadID)
	}

	if _, ok, _ := ds.GetRead(ReadID{}); ok {
		t.Fatalf("GetRead should miss for an id present in no file")
	}
}

func TestDatasetGetReadWithoutIndexScansFiles(t *testing.T) {
	root := t.TempDir()
	r1 := newTestRead(t, 13)
	writeTestPod5(t, filepath.Join(root, "only.pod5"), []Read{r1})

	ds, err := OpenDataset([]string{root}, nil)
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	defer ds.Close()

	rec, ok, err := ds.GetRead(r1.ReadID)
	if err != nil || !ok {
		t.Fatalf("GetRead: ok=%v err=%v", ok, err)
	}
	if rec.ReadID != r1.ReadID {
		t.Fatalf("got read %s, want %s", rec.ReadID, r1.ReadID)
	}
}

func TestDatasetIterateReadsVisitsEveryRead(t *testing.T) {
	root := t.TempDir()
	want := map[ReadID]bool{}
	names := []string{"x.pod5", "y.pod5", "z.pod5"}
	for i, n := range []int{5, 6, 7} {
		r := newTestRead(t, 40+n)
		want[r.ReadID] = true
		writeTestPod5(t, filepath.Join(root, names[i]), []Read{r})
	}

	ds, err := OpenDataset([]string{root}, &DatasetOptions{Parallelism: 2})
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	defer ds.Close()

	got := map[ReadID]bool{}
	for res := range ds.IterateReads() {
		if res.Err != nil {
			t.Fatalf("iterate: %v", res.Err)
		}
		got[res.Read.ReadID] = true
	}
	if len(got) != len(want) {
		t.Fatalf("got %d reads, want %d", len(got), len(want))
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("missing read %s from iteration", id)
		}
	}
}

func TestDatasetCacheEvictsUnderBound(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 4; i++ {
		writeTestPod5(t, filepath.Join(root, string(rune('a'+i))+".pod5"), []Read{newTestRead(t, 50+i)})
	}

	ds, err := OpenDataset([]string{root}, &DatasetOptions{CacheSize: 2})
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	defer ds.Close()

	for _, p := range ds.paths {
		if _, err := ds.getReader(p); err != nil {
			t.Fatalf("getReader(%s): %v", p, err)
		}
	}
	if ds.cache.Len() > 2 {
		t.Fatalf("cache holds %d entries, want <= 2", ds.cache.Len())
	}
}
