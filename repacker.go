// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nanoporetech/pod5/internal/log"
)

// RepackerOptions configures a Repacker.
type RepackerOptions struct {
	// QueueSize bounds the per-output job channel, providing the
	// back-pressure spec.md §4.6 describes. Defaults to
	// DefaultRepackerQueueSize.
	QueueSize int
	Logger    log.Logger
}

// DefaultRepackerQueueSize is the per-output pending-job channel capacity
// used when RepackerOptions.QueueSize is unset.
const DefaultRepackerQueueSize = 64

// OutputHandle identifies one registered Repacker destination.
type OutputHandle int

// OutputStats is a point-in-time snapshot of one output's progress, the
// observable surface spec.md §4.6's wait/waiter/is_complete describe.
type OutputStats struct {
	ReadsRequested          uint64
	ReadsCompleted          uint64
	BytesOfSamplesCompleted uint64
	Err                     error
	Done                    bool
}

type repackJob struct {
	read CompressedRead
}

type repackerOutput struct {
	writer *Writer
	path   string

	jobs chan repackJob
	done chan struct{}

	requested uint64
	completed uint64
	bytes     uint64

	mu       sync.Mutex
	err      error
	finished bool
}

func (ro *repackerOutput) run() {
	defer close(ro.done)
	for job := range ro.jobs {
		if ro.loadErr() != nil {
			continue // drain remaining jobs without writing after a fatal error
		}
		if err := ro.writer.Add(job.read); err != nil {
			ro.setErr(fmt.Errorf("pod5: repack output: %w", err))
			continue
		}
		atomic.AddUint64(&ro.completed, 1)
		atomic.AddUint64(&ro.bytes, job.read.NumSamples()*2)
	}
	if ro.loadErr() == nil {
		if err := ro.writer.Close(ro.path); err != nil {
			ro.setErr(fmt.Errorf("pod5: sealing repack output %s: %w", ro.path, err))
		}
	}
}

func (ro *repackerOutput) setErr(err error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if ro.err == nil {
		ro.err = err
	}
}

func (ro *repackerOutput) loadErr() error {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return ro.err
}

func (ro *repackerOutput) stats() OutputStats {
	return OutputStats{
		ReadsRequested:          atomic.LoadUint64(&ro.requested),
		ReadsCompleted:          atomic.LoadUint64(&ro.completed),
		BytesOfSamplesCompleted: atomic.LoadUint64(&ro.bytes),
		Err:                     ro.loadErr(),
	}
}

// Repacker moves reads between files without decompressing signal: given
// N reader handles and M writer outputs, it submits planned batches to a
// per-output pipeline that re-interns dictionaries in the destination and
// copies signal chunk bytes verbatim, writing as fast as the destination
// can flush (spec.md §4.6).
type Repacker struct {
	opts *RepackerOptions
	log  *log.Helper

	mu      sync.Mutex
	outputs []*repackerOutput
}

// NewRepacker allocates an empty Repacker. A nil *RepackerOptions behaves
// like a zero-valued one.
func NewRepacker(opts *RepackerOptions) *Repacker {
	o := RepackerOptions{}
	if opts != nil {
		o = *opts
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultRepackerQueueSize
	}
	return &Repacker{opts: &o, log: log.NewHelper(o.Logger)}
}

// AddOutput registers w, to be sealed at path once SetOutputFinished is
// called and all submitted reads have drained. An output may receive reads
// from multiple AddAllReadsToOutput/AddSelectedReadsToOutput calls.
func (rp *Repacker) AddOutput(w *Writer, path string) OutputHandle {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	ro := &repackerOutput{
		writer: w,
		path:   path,
		jobs:   make(chan repackJob, rp.opts.QueueSize),
		done:   make(chan struct{}),
	}
	rp.outputs = append(rp.outputs, ro)
	go ro.run()
	return OutputHandle(len(rp.outputs) - 1)
}

func (rp *Repacker) output(h OutputHandle) (*repackerOutput, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if int(h) < 0 || int(h) >= len(rp.outputs) {
		return nil, fmt.Errorf("pod5: invalid output handle %d", h)
	}
	return rp.outputs[h], nil
}

// AddAllReadsToOutput submits every read of reader to handle, in file
// order.
func (rp *Repacker) AddAllReadsToOutput(h OutputHandle, reader *Reader) error {
	ro, err := rp.output(h)
	if err != nil {
		return err
	}

	it := reader.Reads()
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		if err := rp.submit(ro, rec); err != nil {
			return err
		}
	}
	return nil
}

// AddSelectedReadsToOutput submits the planned traversal of ids in reader
// to handle. A planning failure (missing id) is returned before any job is
// submitted, per spec.md §4.6's "aborts the whole repack" failure model.
func (rp *Repacker) AddSelectedReadsToOutput(h OutputHandle, reader *Reader, ids []ReadID, order TraversalOrder) error {
	ro, err := rp.output(h)
	if err != nil {
		return err
	}

	recs, err := reader.SelectedReads(ids, order, false)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := rp.submit(ro, rec); err != nil {
			return err
		}
	}
	return nil
}

// submit resolves rec's signal to its still-compressed chunk bytes and
// enqueues it, blocking if the output's queue is full (back-pressure).
func (rp *Repacker) submit(ro *repackerOutput, rec *ReadRecord) error {
	chunks, lengths, err := rec.reader.rawSignalChunks(rec.SignalRowRefs)
	if err != nil {
		return fmt.Errorf("pod5: reading signal for repack of %s: %w", rec.ReadID, err)
	}

	atomic.AddUint64(&ro.requested, 1)
	ro.jobs <- repackJob{read: CompressedRead{
		BaseRead:           rec.BaseRead,
		SignalChunks:       chunks,
		SignalChunkLengths: lengths,
	}}
	return nil
}

// SetOutputFinished signals that no further input will be submitted to
// handle; its writer is sealed once every already-queued read has drained.
func (rp *Repacker) SetOutputFinished(h OutputHandle) error {
	ro, err := rp.output(h)
	if err != nil {
		return err
	}
	ro.mu.Lock()
	already := ro.finished
	ro.finished = true
	ro.mu.Unlock()
	if !already {
		close(ro.jobs)
	}
	return nil
}

// Waiter returns a snapshot of every output's progress.
func (rp *Repacker) Waiter() []OutputStats {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	out := make([]OutputStats, len(rp.outputs))
	for i, ro := range rp.outputs {
		out[i] = ro.stats()
		select {
		case <-ro.done:
			out[i].Done = true
		default:
		}
	}
	return out
}

// IsComplete reports whether every registered output has finished and
// sealed (or failed).
func (rp *Repacker) IsComplete() bool {
	for _, s := range rp.Waiter() {
		if !s.Done {
			return false
		}
	}
	return true
}

// Wait blocks until every output has drained and sealed.
func (rp *Repacker) Wait() {
	rp.mu.Lock()
	outputs := append([]*repackerOutput(nil), rp.outputs...)
	rp.mu.Unlock()
	for _, ro := range outputs {
		<-ro.done
	}
}

// Finish blocks until every output is drained and sealed, then returns the
// first fatal error encountered across all outputs, if any.
func (rp *Repacker) Finish() error {
	rp.Wait()
	for _, s := range rp.Waiter() {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}
