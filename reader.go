// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"

	"github.com/nanoporetech/pod5/internal/log"
	"github.com/nanoporetech/pod5/vbz"
)

// ReaderOptions configures a Reader. A nil *ReaderOptions behaves like a
// zero-valued one, following the teacher's pe.Options convention.
type ReaderOptions struct {
	// Logger receives diagnostic output. If nil, a WARN+/stderr helper is
	// used (see internal/log.NewHelper).
	Logger log.Logger
}

// Reader is the random-access and streaming entry point for an existing
// POD5 file (spec.md §4.4). It owns the memory map and the per-table Arrow
// readers; record/batch views it hands out borrow from that mapping for the
// Reader's lifetime (spec.md §3 "Ownership").
type Reader struct {
	path string
	cf   *file
	ix   *readIndex
	log  *log.Helper

	mu             sync.Mutex
	runInfoCache   map[string]RunInfo
	closed         bool

	// signalBatchOffsets[i] is the cumulative row count through signal
	// batch i-1 (signalBatchOffsets[0] == 0), built once from the footer's
	// per-batch row counts so signal-row refs resolve against the batch
	// boundaries the writer actually produced instead of assuming every
	// batch holds SignalBatchRowCount rows.
	signalBatchOffsets []uint64
}

// Open memory-maps and validates the file at path, builds the in-memory
// index, and returns a ready Reader.
func Open(path string, opts *ReaderOptions) (*Reader, error) {
	if opts == nil {
		opts = &ReaderOptions{}
	}

	cf, err := openFile(path)
	if err != nil {
		return nil, err
	}

	var ix *readIndex
	if cf.indexReader != nil {
		ix, err = decodeIndexTable(cf.indexReader)
		if err != nil {
			cf.close()
			return nil, fmt.Errorf("pod5: decoding index: %w", err)
		}
	} else {
		// No persisted index (e.g. a file written by a minimal writer
		// variant): rebuild it by walking the reads table once.
		ix, err = buildIndexFromReadsTable(cf.readsReader)
		if err != nil {
			cf.close()
			return nil, fmt.Errorf("pod5: rebuilding index: %w", err)
		}
	}

	return &Reader{
		path:               path,
		cf:                 cf,
		ix:                 ix,
		log:                log.NewHelper(opts.Logger),
		runInfoCache:       make(map[string]RunInfo),
		signalBatchOffsets: signalBatchOffsets(cf.footer),
	}, nil
}

// signalBatchOffsets builds the cumulative-row-count prefix table used to
// resolve signal-row refs: offsets[i] is the number of signal rows in
// batches [0,i). A file with no persisted per-batch counts (nothing ever
// written through this package without them) falls back to treating every
// batch as footer.SignalBatchRowCount rows, which is only correct when that
// happens to hold.
func signalBatchOffsets(ft *footer) []uint64 {
	if len(ft.SignalBatchRowCounts) == 0 {
		return nil
	}
	offsets := make([]uint64, len(ft.SignalBatchRowCounts)+1)
	for i, n := range ft.SignalBatchRowCounts {
		offsets[i+1] = offsets[i] + uint64(n)
	}
	return offsets
}

// Close drops the Reader's views and unmaps the underlying file. Safe to
// call more than once. Accessing a record/batch view obtained before Close
// is a usage error (spec.md §4.4 "Handle hygiene").
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.runInfoCache = nil
	return r.cf.close()
}

// FileIdentifier returns the file's UUID.
func (r *Reader) FileIdentifier() [16]byte { return r.cf.footer.FileUUID }

// FileVersion returns the version the file was written with.
func (r *Reader) FileVersion() string { return r.cf.footer.Version }

// WritingSoftware returns the software name recorded in the footer.
func (r *Reader) WritingSoftware() string { return r.cf.footer.WritingSoftware }

// BatchCount returns the number of reads-table batches in the file.
func (r *Reader) BatchCount() int { return r.cf.readsReader.NumRecords() }

// Len returns the number of reads indexed in the file.
func (r *Reader) Len() int { return r.ix.len() }

// Batches returns a lazy, restartable sequence of batch views in file
// order (spec.md §4.4 "Iterate batches").
func (r *Reader) Batches() *BatchIterator {
	return &BatchIterator{r: r, n: r.BatchCount()}
}

// BatchIterator walks reads-table batches in file order.
type BatchIterator struct {
	r   *Reader
	i   int
	n   int
}

// Next returns the next batch view, or (nil, false) once exhausted.
func (it *BatchIterator) Next() (*Batch, bool) {
	if it.i >= it.n {
		return nil, false
	}
	b, err := it.r.getBatch(it.i)
	it.i++
	if err != nil {
		return nil, false
	}
	return b, true
}

// Reads returns a lazy sequence of every ReadRecord in file order (spec.md
// §4.4 "Iterate reads"; spec.md §8 property 2: batch iteration flattened
// equals read iteration).
func (r *Reader) Reads() *ReadIterator {
	return &ReadIterator{batches: r.Batches()}
}

// ReadIterator walks every read record in file order.
type ReadIterator struct {
	batches *BatchIterator
	cur     *Batch
	row     int
}

// Next returns the next read record, or (nil, false) once exhausted.
func (it *ReadIterator) Next() (*ReadRecord, bool) {
	for {
		if it.cur == nil {
			b, ok := it.batches.Next()
			if !ok {
				return nil, false
			}
			it.cur = b
			it.row = 0
		}
		if it.row < it.cur.NumRows() {
			rec, err := it.cur.Read(it.row)
			it.row++
			if err != nil {
				continue
			}
			return rec, true
		}
		it.cur = nil
	}
}

// GetRead looks up a single read by identifier, returning (nil, false) if
// it isn't present (spec.md §4.4 "Get read by identifier").
func (r *Reader) GetRead(id ReadID) (*ReadRecord, bool, error) {
	loc, ok := r.ix.get(id)
	if !ok {
		return nil, false, nil
	}
	b, err := r.getBatch(int(loc.Batch))
	if err != nil {
		return nil, false, err
	}
	rec, err := b.Read(int(loc.Row))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// PlanTraversal resolves ids into a traversal plan over this file's
// batches (spec.md §4.4 "Plan traversal").
func (r *Reader) PlanTraversal(ids []ReadID, order TraversalOrder, missingOK bool) (Plan, error) {
	return r.ix.PlanTraversal(ids, order, r.BatchCount(), missingOK)
}

// SelectedReads iterates exactly the reads named by ids, in the order
// implied by order, failing with ErrMissingReads unless missingOK is true.
func (r *Reader) SelectedReads(ids []ReadID, order TraversalOrder, missingOK bool) ([]*ReadRecord, error) {
	plan, err := r.PlanTraversal(ids, order, missingOK)
	if err != nil {
		return nil, err
	}

	out := make([]*ReadRecord, 0, len(plan.BatchRows))
	offset := 0
	for batchIdx, count := range plan.PerBatchCounts {
		if count == 0 {
			continue
		}
		b, err := r.getBatch(batchIdx)
		if err != nil {
			return nil, err
		}
		for _, row := range plan.BatchRows[offset : offset+int(count)] {
			rec, err := b.Read(int(row))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		offset += int(count)
	}
	return out, nil
}

// BatchesPreload is Batches, but with the async signal prefetcher (spec.md
// §4.5) submitting every batch's rows for decompression ahead of time. Each
// returned Batch already carries its signal cache; ReadRecord.Signal and
// SampleCount return instantly instead of decoding.
func (r *Reader) BatchesPreload(opts PreloadOptions) (*PreloadedBatchIterator, error) {
	n := r.BatchCount()
	jobs := make([]batchJob, n)
	for i := 0; i < n; i++ {
		rowsPerBatch, err := r.batchRowCount(i)
		if err != nil {
			return nil, err
		}
		rows := make([]int, rowsPerBatch)
		for j := range rows {
			rows[j] = j
		}
		jobs[i] = batchJob{seq: i, batchIndex: i, rows: rows}
	}
	return &PreloadedBatchIterator{r: r, p: newSignalPrefetcher(r, jobs, opts)}, nil
}

// SelectedBatchesPreload resolves ids into a traversal plan (per order and
// missingOK, as PlanTraversal) and preloads signal for exactly those rows.
func (r *Reader) SelectedBatchesPreload(ids []ReadID, order TraversalOrder, missingOK bool, opts PreloadOptions) (*PreloadedBatchIterator, error) {
	plan, err := r.PlanTraversal(ids, order, missingOK)
	if err != nil {
		return nil, err
	}

	var jobs []batchJob
	offset := 0
	seq := 0
	for batchIdx, count := range plan.PerBatchCounts {
		if count == 0 {
			continue
		}
		rows := make([]int, count)
		for i, row := range plan.BatchRows[offset : offset+int(count)] {
			rows[i] = int(row)
		}
		offset += int(count)
		jobs = append(jobs, batchJob{seq: seq, batchIndex: batchIdx, rows: rows})
		seq++
	}
	return &PreloadedBatchIterator{r: r, p: newSignalPrefetcher(r, jobs, opts), batchOrder: jobsBatchIndices(jobs)}, nil
}

func jobsBatchIndices(jobs []batchJob) []int {
	out := make([]int, len(jobs))
	for i, j := range jobs {
		out[i] = j.batchIndex
	}
	return out
}

// PreloadedBatchIterator walks batches whose signal has been (or is being)
// asynchronously decompressed, releasing them strictly in planned-batch
// order regardless of which worker finished first (spec.md §4.5, §5).
type PreloadedBatchIterator struct {
	r          *Reader
	p          *signalPrefetcher
	batchOrder []int // nil means "every batch, 0..n-1"
	i          int
}

// Next returns the next batch, with cached signal attached, or (nil, false)
// once exhausted.
func (it *PreloadedBatchIterator) Next() (*Batch, bool, error) {
	cache, err := it.p.ReleaseNextBatch()
	if err != nil {
		return nil, false, err
	}
	if cache == nil {
		return nil, false, nil
	}
	b, err := it.r.getBatch(cache.batchIndex)
	if err != nil {
		return nil, false, err
	}
	b.cachedSignal = cache
	return b, true, nil
}

// Cancel stops in-flight prefetch work; the iterator is not resumable after.
func (it *PreloadedBatchIterator) Cancel() { it.p.Cancel() }

func (r *Reader) batchRowCount(idx int) (int, error) {
	rec, err := r.cf.readsReader.Record(idx)
	if err != nil {
		return 0, err
	}
	return int(rec.NumRows()), nil
}

// getBatch materialises the idx-th reads-table record batch into a Batch
// view. Batches are cheap: the underlying arrow.Record borrows from the
// Reader's memory map.
func (r *Reader) getBatch(idx int) (*Batch, error) {
	rec, err := r.cf.readsReader.Record(idx)
	if err != nil {
		return nil, fmt.Errorf("pod5: reading batch %d: %w", idx, err)
	}
	rec.Retain()
	return &Batch{r: r, rec: rec, index: idx}, nil
}

// runInfo resolves a run-info acquisition id to its full RunInfo value,
// caching resolved values so repeated lookups across batches don't
// re-materialise identical dictionaries (spec.md §4.4 "Run-info caching").
func (r *Reader) runInfo(acquisitionID string) (RunInfo, error) {
	r.mu.Lock()
	if ri, ok := r.runInfoCache[acquisitionID]; ok {
		r.mu.Unlock()
		return ri, nil
	}
	r.mu.Unlock()

	for i := 0; i < r.cf.runInfoReader.NumRecords(); i++ {
		rec, err := r.cf.runInfoReader.Record(i)
		if err != nil {
			return RunInfo{}, err
		}
		idCol := rec.Column(0).(*array.String)
		for row := 0; row < int(rec.NumRows()); row++ {
			if idCol.Value(row) != acquisitionID {
				continue
			}
			ri := decodeRunInfoRow(rec, row)
			r.mu.Lock()
			r.runInfoCache[acquisitionID] = ri
			r.mu.Unlock()
			return ri, nil
		}
	}
	return RunInfo{}, fmt.Errorf("pod5: run-info %q not found", acquisitionID)
}

// decodeSignal resolves a list of signal-row references into the
// concatenated, decompressed int16 signal, per spec.md §3's Signal Table
// invariant.
func (r *Reader) decodeSignal(refs []uint64, expectedSamples uint64) ([]int16, error) {
	chunks, lengths, err := r.rawSignalChunks(refs)
	if err != nil {
		return nil, err
	}

	out, err := vbz.DecompressChunked(chunks, lengths)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSignal, err)
	}
	if uint64(len(out)) != expectedSamples {
		return nil, fmt.Errorf("%w: got %d samples, read record states %d", ErrCorruptSignal, len(out), expectedSamples)
	}
	return out, nil
}

// rawSignalChunks resolves refs to their still-compressed bytes and
// uncompressed sample counts, without decoding. The Repacker uses this to
// copy signal rows verbatim between files that agree on codec (spec.md
// §4.6 "chunks copy as opaque bytes").
func (r *Reader) rawSignalChunks(refs []uint64) (chunks [][]byte, lengths []uint32, err error) {
	chunks = make([][]byte, len(refs))
	lengths = make([]uint32, len(refs))

	for i, ref := range refs {
		batchIdx, row, err := r.resolveSignalRef(ref)
		if err != nil {
			return nil, nil, err
		}

		rec, err := r.cf.signalReader.Record(batchIdx)
		if err != nil {
			return nil, nil, fmt.Errorf("pod5: signal batch %d: %w", batchIdx, err)
		}
		samplesCol := rec.Column(1).(*array.Uint32)
		signalCol := rec.Column(2).(*array.LargeBinary)
		lengths[i] = samplesCol.Value(row)
		chunks[i] = signalCol.Value(row)
	}
	return chunks, lengths, nil
}

// resolveSignalRef maps a flat signal-row ref to its (batch, row) location
// on disk using the footer's actual per-batch row counts, via a binary
// search over the cumulative offsets built at Open. Signal batches are not
// guaranteed uniform size: an explicit Flush or a read whose chunks
// straddle SignalBatchRowCount both produce a batch shorter or longer than
// the nominal size, so dividing ref by a constant would resolve to the
// wrong batch and row.
func (r *Reader) resolveSignalRef(ref uint64) (batchIdx, row int, err error) {
	offsets := r.signalBatchOffsets
	if len(offsets) == 0 {
		rowsPerBatch := uint64(r.signalBatchRowCount())
		return int(ref / rowsPerBatch), int(ref % rowsPerBatch), nil
	}

	n := len(offsets) - 1
	i := sort.Search(n, func(i int) bool { return offsets[i+1] > ref })
	if i >= n {
		return 0, 0, fmt.Errorf("pod5: signal row ref %d out of range (table has %d rows)", ref, offsets[n])
	}
	return i, int(ref - offsets[i]), nil
}

func (r *Reader) signalBatchRowCount() uint32 {
	if r.cf.footer.SignalBatchRowCount == 0 {
		return DefaultSignalBatchSize
	}
	return r.cf.footer.SignalBatchRowCount
}

// Batch is a view over one reads-table record batch. It borrows from the
// Reader's memory map and must not be used after the Reader is closed.
type Batch struct {
	r     *Reader
	rec   arrow.Record
	index int

	cachedSignal *signalCacheBatch // set by the async prefetcher, see prefetch.go
}

// Index returns this batch's position in the reads table.
func (b *Batch) Index() int { return b.index }

// NumRows returns the number of read records in this batch.
func (b *Batch) NumRows() int { return int(b.rec.NumRows()) }

// Release drops this batch's retained reference to the underlying record.
func (b *Batch) Release() { b.rec.Release() }

// Reads returns every read record in this batch, in row order.
func (b *Batch) Reads() ([]*ReadRecord, error) {
	out := make([]*ReadRecord, 0, b.NumRows())
	for row := 0; row < b.NumRows(); row++ {
		rec, err := b.Read(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Read decodes the row-th read record of this batch.
func (b *Batch) Read(row int) (*ReadRecord, error) {
	rr, err := decodeReadsRow(b.rec, row, b.r.runInfo)
	if err != nil {
		return nil, err
	}
	rr.reader = b.r
	if b.cachedSignal != nil {
		if cached, ok := b.cachedSignal.get(row); ok {
			rr.cachedSignal = cached
		}
	}
	return rr, nil
}

// decodeReadsRow decodes the row-th record of a reads-table record batch,
// resolving its run-info dictionary entry via lookupRunInfo. Shared by
// Batch.Read (which resolves against the open file) and recovery (which
// resolves against a run-info table rebuilt from recovered bytes).
func decodeReadsRow(rec arrow.Record, row int, lookupRunInfo func(string) (RunInfo, error)) (*ReadRecord, error) {
	var id ReadID
	copy(id[:], rec.Column(0).(*array.FixedSizeBinary).Value(row))

	poreTypeStr, err := dictionaryStringAt(rec.Column(5), row)
	if err != nil {
		return nil, err
	}
	endReasonStr, err := dictionaryStringAt(rec.Column(9), row)
	if err != nil {
		return nil, err
	}
	acquisitionID, err := dictionaryStringAt(rec.Column(11), row)
	if err != nil {
		return nil, err
	}

	runInfo, err := lookupRunInfo(acquisitionID)
	if err != nil {
		return nil, err
	}

	listCol := rec.Column(12).(*array.List)
	start, end := listCol.ValueOffsets(row)
	valuesCol := listCol.ListValues().(*array.Uint64)
	refs := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		refs = append(refs, valuesCol.Value(int(i)))
	}

	rr := &ReadRecord{
		BaseRead: BaseRead{
			ReadID:      id,
			ReadNumber:  rec.Column(1).(*array.Uint32).Value(row),
			StartSample: rec.Column(2).(*array.Uint64).Value(row),
			Pore: Pore{
				Channel:  rec.Column(3).(*array.Uint16).Value(row),
				Well:     rec.Column(4).(*array.Uint8).Value(row),
				PoreType: PoreType(poreTypeStr),
			},
			Calibration: Calibration{
				Offset: rec.Column(6).(*array.Float32).Value(row),
				Scale:  rec.Column(7).(*array.Float32).Value(row),
			},
			MedianBefore: rec.Column(8).(*array.Float32).Value(row),
			EndReason: EndReason{
				Reason: parseEndReasonName(endReasonStr),
				Forced: rec.Column(10).(*array.Boolean).Value(row),
			},
			RunInfo:          runInfo,
			NumMinknowEvents: rec.Column(13).(*array.Uint64).Value(row),
			TrackedScaling: ShiftScale{
				Scale: rec.Column(14).(*array.Float32).Value(row),
				Shift: rec.Column(15).(*array.Float32).Value(row),
			},
			PredictedScaling: ShiftScale{
				Scale: rec.Column(16).(*array.Float32).Value(row),
				Shift: rec.Column(17).(*array.Float32).Value(row),
			},
			NumReadsSinceMuxChange: rec.Column(18).(*array.Uint32).Value(row),
			TimeSinceMuxChange:     rec.Column(19).(*array.Float32).Value(row),
		},
		SignalRowRefs: refs,
		NumSamples:    rec.Column(20).(*array.Uint64).Value(row),
	}
	return rr, nil
}

// dictionaryStringAt resolves a dictionary-encoded string column's value at
// row, for the pore-type/end-reason/run-info columns.
func dictionaryStringAt(col arrow.Array, row int) (string, error) {
	dict, ok := col.(*array.Dictionary)
	if !ok {
		return "", fmt.Errorf("pod5: expected dictionary column, got %T", col)
	}
	values, ok := dict.Dictionary().(*array.String)
	if !ok {
		return "", fmt.Errorf("pod5: expected string dictionary values, got %T", dict.Dictionary())
	}
	return values.Value(dict.GetValueIndex(row)), nil
}

func parseEndReasonName(name string) EndReasonKind {
	for k, n := range endReasonNames {
		if n == name {
			return EndReasonKind(k)
		}
	}
	return EndReasonUnknown
}

func decodeRunInfoRow(rec arrow.Record, row int) RunInfo {
	return RunInfo{
		AcquisitionID:        rec.Column(0).(*array.String).Value(row),
		AcquisitionStartTime: rec.Column(1).(*array.Int64).Value(row),
		AdcMax:               rec.Column(2).(*array.Int16).Value(row),
		AdcMin:               rec.Column(3).(*array.Int16).Value(row),
		ContextTags:          decodeStringMap(rec.Column(4), row),
		ExperimentName:       rec.Column(5).(*array.String).Value(row),
		FlowCellID:           rec.Column(6).(*array.String).Value(row),
		FlowCellProductCode:  rec.Column(7).(*array.String).Value(row),
		ProtocolName:         rec.Column(8).(*array.String).Value(row),
		ProtocolRunID:        rec.Column(9).(*array.String).Value(row),
		ProtocolStartTime:    rec.Column(10).(*array.Int64).Value(row),
		SampleID:             rec.Column(11).(*array.String).Value(row),
		SampleRate:           rec.Column(12).(*array.Uint16).Value(row),
		SequencingKit:        rec.Column(13).(*array.String).Value(row),
		SequencerPosition:    rec.Column(14).(*array.String).Value(row),
		SequencerPositionType: rec.Column(15).(*array.String).Value(row),
		Software:             rec.Column(16).(*array.String).Value(row),
		SystemName:           rec.Column(17).(*array.String).Value(row),
		SystemType:           rec.Column(18).(*array.String).Value(row),
		TrackingID:           decodeStringMap(rec.Column(19), row),
	}
}

func decodeStringMap(col arrow.Array, row int) map[string]string {
	m, ok := col.(*array.Map)
	if !ok {
		return nil
	}
	start, end := m.ValueOffsets(row)
	keys := m.Keys().(*array.String)
	values := m.Items().(*array.String)
	out := make(map[string]string, end-start)
	for i := start; i < end; i++ {
		out[keys.Value(int(i))] = values.Value(int(i))
	}
	return out
}

// buildIndexFromReadsTable rebuilds an index by walking every batch and row
// once; used when a file carries no persisted index table.
func buildIndexFromReadsTable(r interface {
	NumRecords() int
	Record(int) (arrow.Record, error)
}) (*readIndex, error) {
	ix := newReadIndex()
	for batch := 0; batch < r.NumRecords(); batch++ {
		rec, err := r.Record(batch)
		if err != nil {
			return nil, err
		}
		idCol := rec.Column(0).(*array.FixedSizeBinary)
		for row := 0; row < int(rec.NumRows()); row++ {
			var id ReadID
			copy(id[:], idCol.Value(row))
			ix.add(id, rowLocation{Batch: uint32(batch), Row: uint32(row)})
		}
	}
	return ix, nil
}
