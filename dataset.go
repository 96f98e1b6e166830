// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nanoporetech/pod5/internal/log"
)

// DefaultDatasetCacheSize is the number of open Readers a Dataset keeps
// warm when OpenDataset is given nil options.
const DefaultDatasetCacheSize = 16

// DefaultDatasetParallelism bounds how many files IterateReads walks
// concurrently when DatasetOptions.Parallelism is unset.
const DefaultDatasetParallelism = 4

// DatasetOptions configures a Dataset.
type DatasetOptions struct {
	// CacheSize bounds the number of Readers kept open at once. Zero
	// disables caching: every access opens and fully materialises the
	// read it needs, then closes the file immediately (spec.md §4.8).
	CacheSize int
	// BuildIndex builds a global read-id -> path index at Open time,
	// trading an up-front full scan of every file for O(1) GetRead.
	BuildIndex bool
	// Parallelism bounds how many files IterateReads reads concurrently.
	Parallelism int
	// Duplicates, if non-nil, receives a DuplicateNotice for every read id
	// found in more than one file while OpenDataset builds the global index.
	// It must be drained by the caller or OpenDataset's index build will
	// block; leave nil to have each duplicate logged as a warning instead.
	Duplicates chan<- DuplicateNotice
	Logger     log.Logger
}

// DuplicateNotice reports a read id seen in more than one file.
type DuplicateNotice struct {
	ReadID      ReadID
	ChosenPath  string
	IgnoredPath string
}

// Dataset presents a set of POD5 files discovered under one or more root
// directories as a single addressable collection (spec.md §4.8).
type Dataset struct {
	opts  DatasetOptions
	log   *log.Helper
	paths []string

	mu      sync.Mutex
	cache   *lru.Cache[string, *Reader]
	evicted []*Reader // reused scratch slice, only touched under mu

	indexMu     sync.RWMutex
	globalIndex map[ReadID]string
}

// OpenDataset discovers every *.pod5 file under roots (recursively) and
// returns a ready Dataset.
func OpenDataset(roots []string, opts *DatasetOptions) (*Dataset, error) {
	o := DatasetOptions{CacheSize: DefaultDatasetCacheSize}
	if opts != nil {
		o = *opts
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultDatasetParallelism
	}

	paths, err := discoverPod5Files(roots)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{opts: o, log: log.NewHelper(o.Logger), paths: paths}

	if o.CacheSize > 0 {
		cache, err := lru.NewWithEvict(o.CacheSize, ds.onEvict)
		if err != nil {
			return nil, fmt.Errorf("pod5: dataset cache: %w", err)
		}
		ds.cache = cache
	}

	if o.BuildIndex {
		if err := ds.buildGlobalIndex(); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func discoverPod5Files(roots []string) ([]string, error) {
	var paths []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".pod5") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("pod5: discovering files under %s: %w", root, err)
		}
	}
	return paths, nil
}

// onEvict is the LRU's eviction callback. Per spec.md §9's "globally
// cached readers" design note, it must never run a Reader's destructor
// while a borrow might be outstanding and while any lock is held: it only
// records the evicted Reader here; getReader closes it after releasing
// ds.mu.
func (ds *Dataset) onEvict(_ string, r *Reader) {
	ds.evicted = append(ds.evicted, r)
}

func (ds *Dataset) buildGlobalIndex() error {
	idx := make(map[ReadID]string)
	for _, path := range ds.paths {
		r, err := Open(path, &ReaderOptions{Logger: ds.opts.Logger})
		if err != nil {
			return fmt.Errorf("pod5: indexing %s: %w", path, err)
		}
		it := r.Reads()
		for {
			rec, ok := it.Next()
			if !ok {
				break
			}
			if existing, dup := idx[rec.ReadID]; dup {
				ds.notifyDuplicate(rec.ReadID, existing, path)
				continue
			}
			idx[rec.ReadID] = path
		}
		r.Close()
	}
	ds.indexMu.Lock()
	ds.globalIndex = idx
	ds.indexMu.Unlock()
	return nil
}

func (ds *Dataset) notifyDuplicate(id ReadID, chosen, ignored string) {
	if ds.opts.Duplicates == nil {
		ds.log.Warnf("duplicate read %s in %s, ignoring %s", id, chosen, ignored)
		return
	}
	ds.opts.Duplicates <- DuplicateNotice{ReadID: id, ChosenPath: chosen, IgnoredPath: ignored}
}

// getReader returns an open Reader for path, using the cache if enabled.
func (ds *Dataset) getReader(path string) (*Reader, error) {
	if ds.cache == nil {
		return Open(path, &ReaderOptions{Logger: ds.opts.Logger})
	}

	ds.mu.Lock()
	if r, ok := ds.cache.Get(path); ok {
		ds.mu.Unlock()
		return r, nil
	}
	ds.mu.Unlock()

	r, err := Open(path, &ReaderOptions{Logger: ds.opts.Logger})
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	ds.evicted = nil
	ds.cache.Add(path, r)
	toClose := ds.evicted
	ds.evicted = nil
	ds.mu.Unlock()

	for _, ev := range toClose {
		if ev != r {
			ev.Close()
		}
	}
	return r, nil
}

// Count returns the total number of read occurrences across every file
// (duplicates counted once per file, as iteration would yield them).
func (ds *Dataset) Count() (int, error) {
	total := 0
	for _, path := range ds.paths {
		r, err := ds.getReader(path)
		if err != nil {
			return 0, err
		}
		total += r.Len()
		ds.releaseIfUncached(path, r)
	}
	return total, nil
}

// releaseIfUncached closes r when the Dataset isn't caching it (CacheSize
// == 0), so a disabled cache doesn't leak file handles.
func (ds *Dataset) releaseIfUncached(_ string, r *Reader) {
	if ds.cache == nil {
		r.Close()
	}
}

// GetRead returns one occurrence of id, chosen arbitrarily when duplicates
// exist across files. With BuildIndex unset this falls back to a linear
// scan of every file, stopping at the first match.
func (ds *Dataset) GetRead(id ReadID) (*ReadRecord, bool, error) {
	if ds.opts.BuildIndex {
		ds.indexMu.RLock()
		path, ok := ds.globalIndex[id]
		ds.indexMu.RUnlock()
		if !ok {
			return nil, false, nil
		}
		r, err := ds.getReader(path)
		if err != nil {
			return nil, false, err
		}
		return r.GetRead(id)
	}

	for _, path := range ds.paths {
		r, err := ds.getReader(path)
		if err != nil {
			return nil, false, err
		}
		rec, ok, err := r.GetRead(id)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return rec, true, nil
		}
		ds.releaseIfUncached(path, r)
	}
	return nil, false, nil
}

type datasetReadResult struct {
	Path string
	Read *ReadRecord
	Err  error
}

// IterateReads walks every read of every file, parallelising across files
// (per-file iteration is always sequential, per spec.md §4.8/§5). The
// returned channel is closed once every file has been drained; callers
// should keep receiving until it closes or abandon the Dataset.
func (ds *Dataset) IterateReads() <-chan datasetReadResult {
	out := make(chan datasetReadResult, ds.opts.Parallelism*4)

	go func() {
		defer close(out)
		sem := make(chan struct{}, ds.opts.Parallelism)
		var wg sync.WaitGroup

		for _, path := range ds.paths {
			path := path
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				r, err := ds.getReader(path)
				if err != nil {
					out <- datasetReadResult{Path: path, Err: err}
					return
				}
				it := r.Reads()
				for {
					rec, ok := it.Next()
					if !ok {
						break
					}
					out <- datasetReadResult{Path: path, Read: rec}
				}
				ds.releaseIfUncached(path, r)
			}()
		}
		wg.Wait()
	}()

	return out
}

// Close releases every cached Reader. The Dataset is not usable afterwards.
func (ds *Dataset) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.cache == nil {
		return nil
	}
	var firstErr error
	for _, path := range ds.cache.Keys() {
		if r, ok := ds.cache.Peek(path); ok {
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	ds.cache.Purge()
	return firstErr
}
