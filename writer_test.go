// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestRead(t *testing.T, n int) Read {
	t.Helper()
	id, err := uuid.NewRandom()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	signal := make([]int16, n)
	for i := range signal {
		signal[i] = int16(i % 1000)
	}
	return Read{
		BaseRead: BaseRead{
			ReadID:      ReadID(id),
			ReadNumber:  1,
			StartSample: 0,
			Pore:        Pore{Channel: 1, Well: 1, PoreType: "r10"},
			Calibration: CalibrationFromRange(0, 100, 8192),
			EndReason:   NewEndReason(EndReasonSignalPositive),
			RunInfo:     RunInfo{AcquisitionID: "acq-1", SampleRate: 4000},
		},
		Signal: signal,
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(&WriterOptions{SoftwareName: "pod5-test"})

	want := []Read{newTestRead(t, 10), newTestRead(t, 5000), newTestRead(t, 0)}
	for _, r := range want {
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "out.pod5")
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.Len(); got != len(want) {
		t.Fatalf("Len() = %d, want %d", got, len(want))
	}

	for _, wantRead := range want {
		rec, ok, err := r.GetRead(wantRead.ReadID)
		if err != nil {
			t.Fatalf("GetRead: %v", err)
		}
		if !ok {
			t.Fatalf("read %s not found", wantRead.ReadID)
		}
		signal, err := rec.Signal()
		if err != nil {
			t.Fatalf("Signal: %v", err)
		}
		if len(signal) != len(wantRead.Signal) {
			t.Fatalf("signal length = %d, want %d", len(signal), len(wantRead.Signal))
		}
		for i := range signal {
			if signal[i] != wantRead.Signal[i] {
				t.Fatalf("signal[%d] = %d, want %d", i, signal[i], wantRead.Signal[i])
			}
		}
		if rec.RunInfo.SampleRate != 4000 {
			t.Fatalf("RunInfo.SampleRate = %d, want 4000", rec.RunInfo.SampleRate)
		}
		if rec.EndReason.Reason != EndReasonSignalPositive {
			t.Fatalf("EndReason = %v, want %v", rec.EndReason.Reason, EndReasonSignalPositive)
		}
	}
}

func TestWriterRejectsDuplicateReadID(t *testing.T) {
	w := NewWriter(nil)
	r := newTestRead(t, 10)
	if err := w.AddRead(r); err != nil {
		t.Fatalf("AddRead: %v", err)
	}
	if err := w.AddRead(r); err == nil {
		t.Fatalf("expected ErrDuplicateReads, got nil")
	}
}

func TestWriterSealedAfterClose(t *testing.T) {
	w := NewWriter(nil)
	path := filepath.Join(t.TempDir(), "out.pod5")
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.AddRead(newTestRead(t, 10)); err != ErrWriterSealed {
		t.Fatalf("AddRead after Close = %v, want ErrWriterSealed", err)
	}
}

func TestWriterManyBatchesFlush(t *testing.T) {
	w := NewWriter(&WriterOptions{ReadBatchSize: 4, SignalBatchRowCount: 4})
	const n = 17
	ids := make([]ReadID, 0, n)
	for i := 0; i < n; i++ {
		r := newTestRead(t, 50)
		ids = append(ids, r.ReadID)
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead %d: %v", i, err)
		}
	}
	path := filepath.Join(t.TempDir(), "out.pod5")
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.BatchCount() < 2 {
		t.Fatalf("BatchCount() = %d, want multiple batches given ReadBatchSize=4 and %d reads", r.BatchCount(), n)
	}
	for i, id := range ids {
		rec, ok, err := r.GetRead(id)
		if err != nil || !ok {
			t.Fatalf("GetRead(%s) = ok=%v err=%v", id, ok, err)
		}
		signal, err := rec.Signal()
		if err != nil {
			t.Fatalf("Signal(%s): %v", id, err)
		}
		if len(signal) != 50 {
			t.Fatalf("read %d: signal length = %d, want 50", i, len(signal))
		}
		for j, v := range signal {
			if v != int16(j%1000) {
				t.Fatalf("read %d: signal[%d] = %d, want %d", i, j, v, j%1000)
			}
		}
	}
}

// TestWriterMidStreamFlushProducesShortBatch exercises an explicit Flush
// between reads, which leaves a non-full signal batch on disk partway
// through the stream. Every read's signal, including those added after the
// short batch, must still resolve correctly.
func TestWriterMidStreamFlushProducesShortBatch(t *testing.T) {
	w := NewWriter(&WriterOptions{SignalBatchRowCount: 100})

	var reads []Read
	for i := 0; i < 3; i++ {
		r := newTestRead(t, 20+i)
		reads = append(reads, r)
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead %d: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for i := 3; i < 6; i++ {
		r := newTestRead(t, 20+i)
		reads = append(reads, r)
		if err := w.AddRead(r); err != nil {
			t.Fatalf("AddRead %d: %v", i, err)
		}
	}

	path := filepath.Join(t.TempDir(), "out.pod5")
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i, want := range reads {
		rec, ok, err := r.GetRead(want.ReadID)
		if err != nil || !ok {
			t.Fatalf("GetRead(read %d) = ok=%v err=%v", i, ok, err)
		}
		signal, err := rec.Signal()
		if err != nil {
			t.Fatalf("Signal(read %d): %v", i, err)
		}
		if len(signal) != len(want.Signal) {
			t.Fatalf("read %d: signal length = %d, want %d", i, len(signal), len(want.Signal))
		}
		for j := range signal {
			if signal[j] != want.Signal[j] {
				t.Fatalf("read %d: signal[%d] = %d, want %d", i, j, signal[j], want.Signal[j])
			}
		}
	}
}

// TestWriterStraddlingReadSignalChunks gives a single read enough signal
// chunks that appending them crosses SignalBatchRowCount mid-read, so the
// flush triggered after the read lands a signal batch sized differently
// from the configured threshold.
func TestWriterStraddlingReadSignalChunks(t *testing.T) {
	w := NewWriter(&WriterOptions{SignalBatchRowCount: 3, SignalChunkSize: 10})

	first := newTestRead(t, 5) // 1 chunk, 1 signal row
	if err := w.AddRead(first); err != nil {
		t.Fatalf("AddRead first: %v", err)
	}
	straddling := newTestRead(t, 55) // 6 chunks of <=10 samples, straddles the threshold
	if err := w.AddRead(straddling); err != nil {
		t.Fatalf("AddRead straddling: %v", err)
	}
	last := newTestRead(t, 7)
	if err := w.AddRead(last); err != nil {
		t.Fatalf("AddRead last: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.pod5")
	if err := w.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for _, want := range []Read{first, straddling, last} {
		rec, ok, err := r.GetRead(want.ReadID)
		if err != nil || !ok {
			t.Fatalf("GetRead(%s) = ok=%v err=%v", want.ReadID, ok, err)
		}
		signal, err := rec.Signal()
		if err != nil {
			t.Fatalf("Signal(%s): %v", want.ReadID, err)
		}
		if len(signal) != len(want.Signal) {
			t.Fatalf("signal length = %d, want %d", len(signal), len(want.Signal))
		}
		for j := range signal {
			if signal[j] != want.Signal[j] {
				t.Fatalf("signal[%d] = %d, want %d", j, signal[j], want.Signal[j])
			}
		}
	}
}
