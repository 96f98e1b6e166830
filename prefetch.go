// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultPrefetchWorkers is the worker-pool size used when callers don't
// specify one explicitly.
const DefaultPrefetchWorkers = 4

// PreloadOptions selects what the async prefetcher should materialise for
// each planned row, mirroring spec.md §4.4's `preload = {samples}` and/or
// `{sample_count}` flags.
type PreloadOptions struct {
	Samples      bool
	SampleCount  bool
	NumWorkers   int
}

// preloadedSignal is what a worker produces for one row.
type preloadedSignal struct {
	samples  []int16
	hasCount bool
	count    uint64
}

// signalCacheBatch is one "signal cache batch" in spec.md §4.5's
// vocabulary: the preloaded signal for every row of one reads-table batch
// that was part of the plan.
type signalCacheBatch struct {
	batchIndex int
	rows       map[int]*preloadedSignal
}

func (s *signalCacheBatch) get(row int) (*preloadedSignal, bool) {
	v, ok := s.rows[row]
	return v, ok
}

// batchJob is one unit of prefetch work: a batch index and the rows within
// it to materialise signal for.
type batchJob struct {
	seq        int
	batchIndex int
	rows       []int
}

// signalPrefetcher is the small parallel pipeline of spec.md §4.5: a pool
// of workers consumes batchJobs concurrently, decompresses as requested,
// and a bounded reorder buffer hands completed signalCacheBatches back to
// ReleaseNextBatch in strict sequence order even though workers may finish
// out of order.
type signalPrefetcher struct {
	reader *Reader
	opts   PreloadOptions

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu           sync.Mutex
	cond         *sync.Cond
	completed    map[int]*signalCacheBatch
	maxCompleted int
	nextSeq      int
	totalJobs    int
	err          error
	cancelled    bool
}

// newSignalPrefetcher starts workers processing jobs and returns a handle
// from which completed batches are released in order.
func newSignalPrefetcher(r *Reader, jobs []batchJob, opts PreloadOptions) *signalPrefetcher {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultPrefetchWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &signalPrefetcher{
		reader:       r,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		group:        group,
		completed:    make(map[int]*signalCacheBatch),
		maxCompleted: opts.NumWorkers,
		totalJobs:    len(jobs),
	}
	p.cond = sync.NewCond(&p.mu)

	jobCh := make(chan batchJob)
	group.Go(func() error {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < opts.NumWorkers; i++ {
		group.Go(func() error {
			for {
				select {
				case job, ok := <-jobCh:
					if !ok {
						return nil
					}
					batch, err := p.process(job)
					if err != nil {
						return err
					}
					p.publish(job.seq, batch)
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	go func() {
		err := group.Wait()
		p.mu.Lock()
		if err != nil && p.err == nil {
			p.err = err
		}
		p.mu.Unlock()
		p.cond.Broadcast()
	}()

	return p
}

func (p *signalPrefetcher) process(job batchJob) (*signalCacheBatch, error) {
	b, err := p.reader.getBatch(job.batchIndex)
	if err != nil {
		return nil, err
	}
	defer b.Release()

	out := &signalCacheBatch{batchIndex: job.batchIndex, rows: make(map[int]*preloadedSignal, len(job.rows))}
	for _, row := range job.rows {
		rec, err := b.Read(row)
		if err != nil {
			return nil, fmt.Errorf("pod5: prefetch batch %d row %d: %w", job.batchIndex, row, err)
		}

		pre := &preloadedSignal{}
		if p.opts.SampleCount {
			pre.hasCount = true
			pre.count = rec.NumSamples
		}
		if p.opts.Samples {
			samples, err := p.reader.decodeSignal(rec.SignalRowRefs, rec.NumSamples)
			if err != nil {
				return nil, err
			}
			pre.samples = samples
		}
		out.rows[row] = pre
	}
	return out, nil
}

// publish stores a completed batch into the bounded reorder buffer. The
// bound is a window on seq, not a flat count: a worker may publish seq only
// once it falls within [nextSeq, nextSeq+maxCompleted), so the one entry
// ReleaseNextBatch is actually waiting for (seq == nextSeq) is never itself
// blocked behind batches that finished out of order ahead of it — only
// workers running further ahead of the consumer than maxCompleted batches
// block, which is the back-pressure spec.md §4.5/§9 calls for without
// risking a reorder deadlock.
func (p *signalPrefetcher) publish(seq int, batch *signalCacheBatch) {
	p.mu.Lock()
	for seq >= p.nextSeq+p.maxCompleted && !p.cancelled {
		p.cond.Wait()
	}
	if !p.cancelled {
		p.completed[seq] = batch
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// ReleaseNextBatch blocks until the next batch (in planned-batch order) is
// ready, then returns it. Returns (nil, nil) once every job has been
// released.
func (p *signalPrefetcher) ReleaseNextBatch() (*signalCacheBatch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.nextSeq >= p.totalJobs {
			return nil, nil
		}
		if batch, ok := p.completed[p.nextSeq]; ok {
			delete(p.completed, p.nextSeq)
			p.nextSeq++
			p.cond.Broadcast()
			return batch, nil
		}
		if p.err != nil {
			return nil, p.err
		}
		p.cond.Wait()
	}
}

// Cancel stops in-flight work and frees buffers. A cancelled prefetch is
// not resumable (spec.md §4.5 "Cancellation").
func (p *signalPrefetcher) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.cancel()
	_ = p.group.Wait()
}
