// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"sync"
	"testing"
	"time"
)

// TestSignalPrefetcherPublishBlocksUntilConsumerDrains exercises the bounded
// reorder buffer directly: with maxCompleted=1, a second publish must block
// until ReleaseNextBatch drains the first entry, giving real back-pressure
// to a worker instead of letting completed batches pile up unbounded.
func TestSignalPrefetcherPublishBlocksUntilConsumerDrains(t *testing.T) {
	p := &signalPrefetcher{
		completed:    make(map[int]*signalCacheBatch),
		maxCompleted: 1,
		totalJobs:    2,
	}
	p.cond = sync.NewCond(&p.mu)

	p.publish(0, &signalCacheBatch{batchIndex: 0})

	secondPublished := make(chan struct{})
	go func() {
		p.publish(1, &signalCacheBatch{batchIndex: 1})
		close(secondPublished)
	}()

	select {
	case <-secondPublished:
		t.Fatalf("publish(1) returned before the full buffer was drained")
	case <-time.After(50 * time.Millisecond):
	}

	batch, err := p.ReleaseNextBatch()
	if err != nil || batch == nil || batch.batchIndex != 0 {
		t.Fatalf("ReleaseNextBatch = (%+v, %v), want batch 0", batch, err)
	}

	select {
	case <-secondPublished:
	case <-time.After(time.Second):
		t.Fatalf("publish(1) did not unblock after the buffer drained")
	}

	batch, err = p.ReleaseNextBatch()
	if err != nil || batch == nil || batch.batchIndex != 1 {
		t.Fatalf("ReleaseNextBatch = (%+v, %v), want batch 1", batch, err)
	}
}

// TestBatchesPreloadMultiBatchOrder exercises the full prefetcher pipeline
// across several reads-table batches, verifying batches are still released
// in order and every read's preloaded signal matches a direct decode.
func TestBatchesPreloadMultiBatchOrder(t *testing.T) {
	w := NewWriter(&WriterOptions{ReadBatchSize: 2})
	var reads []Read
	for i := 0; i < 7; i++ {
		r := newTestRead(t, 30+i)
		reads = append(reads, r)
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead %d: %v", i, err)
		}
	}

	path := t.TempDir() + "/out.pod5"
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	it, err := r.BatchesPreload(PreloadOptions{Samples: true, NumWorkers: 2})
	if err != nil {
		t.Fatalf("BatchesPreload: %v", err)
	}
	defer it.Cancel()

	lastIndex := -1
	seen := map[ReadID][]int16{}
	for {
		b, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if b.Index() <= lastIndex {
			t.Fatalf("batch %d released out of order after %d", b.Index(), lastIndex)
		}
		lastIndex = b.Index()

		recs, err := b.Reads()
		if err != nil {
			t.Fatalf("Reads: %v", err)
		}
		for _, rec := range recs {
			signal, err := rec.Signal()
			if err != nil {
				t.Fatalf("Signal: %v", err)
			}
			seen[rec.ReadID] = signal
		}
		b.Release()
	}

	for _, want := range reads {
		got, ok := seen[want.ReadID]
		if !ok {
			t.Fatalf("read %s missing from preloaded output", want.ReadID)
		}
		if len(got) != len(want.Signal) {
			t.Fatalf("read %s: signal length = %d, want %d", want.ReadID, len(got), len(want.Signal))
		}
		for i := range got {
			if got[i] != want.Signal[i] {
				t.Fatalf("read %s: signal[%d] = %d, want %d", want.ReadID, i, got[i], want.Signal[i])
			}
		}
	}
}
