// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/google/uuid"

	"github.com/nanoporetech/pod5/internal/log"
	"github.com/nanoporetech/pod5/vbz"
)

// WriterOptions configures a Writer. A nil *WriterOptions behaves like a
// zero-valued one, following ReaderOptions' convention.
type WriterOptions struct {
	// SoftwareName is recorded in the footer and the reads-table schema
	// metadata. Defaults to DefaultSoftwareName.
	SoftwareName string
	// ReadBatchSize caps the number of read rows per reads-table batch
	// before an automatic flush. Defaults to DefaultReadBatchSize.
	ReadBatchSize int
	// SignalBatchRowCount caps the number of signal rows per signal-table
	// batch. Defaults to DefaultSignalBatchSize.
	SignalBatchRowCount int
	// SignalChunkSize caps the number of samples per compressed signal
	// chunk; a read's signal is split into chunks of at most this size
	// before compression (spec.md §4.3). Defaults to DefaultSignalChunkSize.
	SignalChunkSize int
	// Logger receives diagnostic output.
	Logger log.Logger
}

func (o *WriterOptions) withDefaults() *WriterOptions {
	out := WriterOptions{}
	if o != nil {
		out = *o
	}
	if out.SoftwareName == "" {
		out.SoftwareName = DefaultSoftwareName
	}
	if out.ReadBatchSize <= 0 {
		out.ReadBatchSize = DefaultReadBatchSize
	}
	if out.SignalBatchRowCount <= 0 {
		out.SignalBatchRowCount = DefaultSignalBatchSize
	}
	if out.SignalChunkSize <= 0 {
		out.SignalChunkSize = DefaultSignalChunkSize
	}
	return &out
}

// Writer creates a new POD5 file. It accepts reads one at a time or in
// batches (spec.md §4.6): for each read it interns pore-type, end-reason
// and run-info via the dictionary discipline of §4.2, splits and
// compresses the signal via §4.3, appends rows to the current signal
// batch, appends a row to the current reads batch referencing those signal
// rows, and updates the index. Flush is triggered automatically by
// ReadBatchSize or by an explicit call to Flush.
//
// A Writer is not safe for concurrent use; callers serialise their own
// Add/AddReads calls (spec.md §5).
type Writer struct {
	opts *WriterOptions
	mem  memory.Allocator
	log  *log.Helper

	fileUUID [16]byte

	pore     *poreDict
	endReas  *endReasonDict
	runInfo  *runInfoDict

	readsSchema    *arrow.Schema
	signalSchema   *arrow.Schema
	runInfoSchema  *arrow.Schema

	readsBatches  [][]byte
	signalBatches [][]byte
	readsBuilder  *array.RecordBuilder
	signalBuilder *array.RecordBuilder

	readsRowsInBatch     int
	signalRowsInBatch    int
	nextSignalRow        uint64
	signalBatchRowCounts []uint32

	ix *readIndex

	mu     sync.Mutex
	sealed bool
}

// NewWriter allocates an empty Writer. Reads accumulate in memory until
// Close writes the finished container to a path.
func NewWriter(opts *WriterOptions) *Writer {
	o := opts.withDefaults()
	w := &Writer{
		opts:    o,
		mem:     memory.NewGoAllocator(),
		log:     log.NewHelper(o.Logger),
		pore:    newPoreDict(),
		endReas: newEndReasonDict(),
		runInfo: newRunInfoDict(),
		ix:      newReadIndex(),
	}
	u, err := uuid.NewRandom()
	if err == nil {
		w.fileUUID = [16]byte(u)
	}
	w.readsSchema = readsTableSchema(w.fileUUID4String(), o.SoftwareName, FormatVersion)
	w.signalSchema = signalTableSchema(false)
	w.runInfoSchema = runInfoTableSchema()
	w.readsBuilder = array.NewRecordBuilder(w.mem, w.readsSchema)
	w.signalBuilder = array.NewRecordBuilder(w.mem, w.signalSchema)
	return w
}

func (w *Writer) fileUUID4String() string {
	return uuid.UUID(w.fileUUID).String()
}

// AddRead appends a single uncompressed read, compressing its signal
// in-process.
func (w *Writer) AddRead(r Read) error {
	chunks, lengths, err := vbz.CompressChunked(r.Signal, w.opts.SignalChunkSize)
	if err != nil {
		return fmt.Errorf("pod5: compressing signal for read %s: %w", r.ReadID, err)
	}
	return w.appendCompressed(CompressedRead{
		BaseRead:           r.BaseRead,
		SignalChunks:       chunks,
		SignalChunkLengths: lengths,
	})
}

// AddReads appends several uncompressed reads in order, as AddRead.
func (w *Writer) AddReads(reads []Read) error {
	for _, r := range reads {
		if err := w.AddRead(r); err != nil {
			return err
		}
	}
	return nil
}

// Add appends a read whose signal is already chunked and compressed (e.g.
// by a Repacker copying bytes verbatim between files).
func (w *Writer) Add(r CompressedRead) error {
	return w.appendCompressed(r)
}

func (w *Writer) appendCompressed(r CompressedRead) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sealed {
		return ErrWriterSealed
	}
	if _, exists := w.ix.get(r.ReadID); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateReads, r.ReadID)
	}

	// Interning records each value in this writer's own dictionaries; the
	// run-info table written at Close comes from w.runInfo (shared with
	// AddRunInfo), while the reads-table dictionary columns are encoded by
	// Arrow's own dictionary builders (see appendDictString).
	w.pore.add(r.Pore.PoreType, r.Pore.PoreType)
	w.endReas.add(r.EndReason, r.EndReason)
	w.runInfo.add(r.RunInfo.AcquisitionID, r.RunInfo)

	refs := make([]uint64, len(r.SignalChunks))
	for i, chunk := range r.SignalChunks {
		if err := w.appendSignalRow(r.ReadID, r.SignalChunkLengths[i], chunk); err != nil {
			return err
		}
		refs[i] = w.nextSignalRow
		w.nextSignalRow++
	}

	w.appendReadsRow(r, refs)

	loc := rowLocation{Batch: uint32(len(w.readsBatches)), Row: uint32(w.readsRowsInBatch)}
	w.ix.add(r.ReadID, loc)
	w.readsRowsInBatch++

	if w.readsRowsInBatch >= w.opts.ReadBatchSize {
		if err := w.flushReadsBatchLocked(); err != nil {
			return err
		}
	}
	if w.signalRowsInBatch >= w.opts.SignalBatchRowCount {
		if err := w.flushSignalBatchLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendSignalRow(id ReadID, samples uint32, compressed []byte) error {
	idCol := w.signalBuilder.Field(0).(*array.FixedSizeBinaryBuilder)
	samplesCol := w.signalBuilder.Field(1).(*array.Uint32Builder)
	signalCol := w.signalBuilder.Field(2).(*array.LargeBinaryBuilder)

	idCopy := id
	idCol.Append(idCopy[:])
	samplesCol.Append(samples)
	signalCol.Append(compressed)
	w.signalRowsInBatch++
	return nil
}

func (w *Writer) appendReadsRow(r CompressedRead, refs []uint64) {
	b := w.readsBuilder

	idCopy := r.ReadID
	b.Field(0).(*array.FixedSizeBinaryBuilder).Append(idCopy[:])
	b.Field(1).(*array.Uint32Builder).Append(r.ReadNumber)
	b.Field(2).(*array.Uint64Builder).Append(r.StartSample)
	b.Field(3).(*array.Uint16Builder).Append(r.Pore.Channel)
	b.Field(4).(*array.Uint8Builder).Append(r.Pore.Well)
	appendDictString(b.Field(5), string(r.Pore.PoreType))
	b.Field(6).(*array.Float32Builder).Append(r.Calibration.Offset)
	b.Field(7).(*array.Float32Builder).Append(r.Calibration.Scale)
	b.Field(8).(*array.Float32Builder).Append(r.MedianBefore)
	appendDictString(b.Field(9), r.EndReason.Reason.String())
	b.Field(10).(*array.BooleanBuilder).Append(r.EndReason.Forced)
	appendDictString(b.Field(11), r.RunInfo.AcquisitionID)

	listBldr := b.Field(12).(*array.ListBuilder)
	listBldr.Append(true)
	valBldr := listBldr.ValueBuilder().(*array.Uint64Builder)
	for _, ref := range refs {
		valBldr.Append(ref)
	}

	b.Field(13).(*array.Uint64Builder).Append(r.NumMinknowEvents)
	b.Field(14).(*array.Float32Builder).Append(r.TrackedScaling.Scale)
	b.Field(15).(*array.Float32Builder).Append(r.TrackedScaling.Shift)
	b.Field(16).(*array.Float32Builder).Append(r.PredictedScaling.Scale)
	b.Field(17).(*array.Float32Builder).Append(r.PredictedScaling.Shift)
	b.Field(18).(*array.Uint32Builder).Append(r.NumReadsSinceMuxChange)
	b.Field(19).(*array.Float32Builder).Append(r.TimeSinceMuxChange)
	b.Field(20).(*array.Uint64Builder).Append(r.NumSamples())
}

// appendDictString appends s to a dictionary-encoded string builder,
// relying on Arrow's own dictionary builder to dedup identical values; the
// stable add-order semantics our own dictionary types track separately are
// what the run-info/pore-type/end-reason lookup tables (§4.2) expose to
// callers, not what's physically encoded on the wire.
func appendDictString(field array.Builder, s string) {
	bldr := field.(*array.BinaryDictionaryBuilder)
	_ = bldr.AppendString(s)
}

// AddRunInfo pre-registers a RunInfo under its acquisition id without
// requiring a read to reference it yet. Later reads referencing the same
// acquisition id resolve to this value (first write wins, see DESIGN.md).
func (w *Writer) AddRunInfo(ri RunInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runInfo.add(ri.AcquisitionID, ri)
}

// flushReadsBatchLocked seals the current reads-table record builder into
// its own single-batch IPC file and starts a fresh builder. Caller holds
// w.mu.
func (w *Writer) flushReadsBatchLocked() error {
	if w.readsRowsInBatch == 0 {
		return nil
	}
	rec := w.readsBuilder.NewRecord()
	defer rec.Release()

	encoded, err := writeSingleBatchIPC(w.readsSchema, rec)
	if err != nil {
		return fmt.Errorf("pod5: flushing reads batch: %w", err)
	}
	w.readsBatches = append(w.readsBatches, encoded)
	w.readsRowsInBatch = 0
	return nil
}

// flushSignalBatchLocked seals the current signal-table record builder into
// its own single-batch IPC file and records its row count. Batches flushed
// this way are not guaranteed to hold SignalBatchRowCount rows each: an
// explicit Flush mid-stream, or a read whose chunks straddle the threshold,
// both produce a short batch, so the reader resolves signal-row refs against
// the recorded per-batch counts (footer.SignalBatchRowCounts) rather than
// assuming uniform size.
func (w *Writer) flushSignalBatchLocked() error {
	if w.signalRowsInBatch == 0 {
		return nil
	}
	rec := w.signalBuilder.NewRecord()
	defer rec.Release()

	encoded, err := writeSingleBatchIPC(w.signalSchema, rec)
	if err != nil {
		return fmt.Errorf("pod5: flushing signal batch: %w", err)
	}
	w.signalBatches = append(w.signalBatches, encoded)
	w.signalBatchRowCounts = append(w.signalBatchRowCounts, uint32(w.signalRowsInBatch))
	w.signalRowsInBatch = 0
	return nil
}

// Flush forces any partially-filled batch to be written out as a
// standalone record batch, without closing the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushReadsBatchLocked(); err != nil {
		return err
	}
	return w.flushSignalBatchLocked()
}

// Close flushes remaining data, writes the run-info and index tables, lays
// out the container (magic, four tables, footer, magic), and writes it to
// path. After Close the Writer is sealed; further Add calls fail with
// ErrWriterSealed.
func (w *Writer) Close(path string) error {
	w.mu.Lock()
	if w.sealed {
		w.mu.Unlock()
		return nil
	}
	if err := w.flushReadsBatchLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.flushSignalBatchLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.sealed = true

	runInfoBytes, err := w.encodeRunInfoTable()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	indexBytes, err := encodeIndexTable(w.ix, w.mem)
	if err != nil {
		w.mu.Unlock()
		return err
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])

	signalSpan := writeConcatenated(&buf, w.signalBatches)
	buf.Write(sectionMarker[:])
	readsSpan := writeConcatenated(&buf, w.readsBatches)
	buf.Write(sectionMarker[:])
	runInfoSpan := writeBytesSpan(&buf, runInfoBytes)
	buf.Write(sectionMarker[:])
	indexSpan := writeBytesSpan(&buf, indexBytes)
	buf.Write(sectionMarker[:])

	ft := &footer{
		FileUUID:             w.fileUUID,
		Version:              FormatVersion,
		VersionPreMigration:  FormatVersion,
		WritingSoftware:      w.opts.SoftwareName,
		SignalTable:          signalSpan,
		ReadsTable:           readsSpan,
		RunInfoTable:         runInfoSpan,
		IndexTable:           indexSpan,
		ReadBatchSize:        uint32(w.opts.ReadBatchSize),
		SignalBatchRowCount:  uint32(w.opts.SignalBatchRowCount),
		SignalBatchRowCounts: w.signalBatchRowCounts,
	}
	footerBytes := ft.encode()
	buf.Write(footerBytes)
	var lenField [footerLengthFieldSize]byte
	binary.LittleEndian.PutUint32(lenField[:], uint32(len(footerBytes)))
	buf.Write(lenField[:])
	buf.Write(Magic[:])

	w.mu.Unlock()

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func (w *Writer) encodeRunInfoTable() ([]byte, error) {
	bldr := array.NewRecordBuilder(w.mem, w.runInfoSchema)
	defer bldr.Release()

	for i := 0; i < w.runInfo.len(); i++ {
		ri := w.runInfo.at(int32(i))
		appendRunInfoRow(bldr, ri)
	}
	rec := bldr.NewRecord()
	defer rec.Release()
	return writeSingleBatchIPC(w.runInfoSchema, rec)
}

func appendRunInfoRow(b *array.RecordBuilder, ri RunInfo) {
	b.Field(0).(*array.StringBuilder).Append(ri.AcquisitionID)
	b.Field(1).(*array.Int64Builder).Append(ri.AcquisitionStartTime)
	b.Field(2).(*array.Int16Builder).Append(ri.AdcMax)
	b.Field(3).(*array.Int16Builder).Append(ri.AdcMin)
	appendStringMap(b.Field(4).(*array.MapBuilder), ri.ContextTags)
	b.Field(5).(*array.StringBuilder).Append(ri.ExperimentName)
	b.Field(6).(*array.StringBuilder).Append(ri.FlowCellID)
	b.Field(7).(*array.StringBuilder).Append(ri.FlowCellProductCode)
	b.Field(8).(*array.StringBuilder).Append(ri.ProtocolName)
	b.Field(9).(*array.StringBuilder).Append(ri.ProtocolRunID)
	b.Field(10).(*array.Int64Builder).Append(ri.ProtocolStartTime)
	b.Field(11).(*array.StringBuilder).Append(ri.SampleID)
	b.Field(12).(*array.Uint16Builder).Append(ri.SampleRate)
	b.Field(13).(*array.StringBuilder).Append(ri.SequencingKit)
	b.Field(14).(*array.StringBuilder).Append(ri.SequencerPosition)
	b.Field(15).(*array.StringBuilder).Append(ri.SequencerPositionType)
	b.Field(16).(*array.StringBuilder).Append(ri.Software)
	b.Field(17).(*array.StringBuilder).Append(ri.SystemName)
	b.Field(18).(*array.StringBuilder).Append(ri.SystemType)
	appendStringMap(b.Field(19).(*array.MapBuilder), ri.TrackingID)
}

func appendStringMap(b *array.MapBuilder, m map[string]string) {
	b.Append(true)
	keyBldr := b.KeyBuilder().(*array.StringBuilder)
	valBldr := b.ItemBuilder().(*array.StringBuilder)
	for k, v := range m {
		keyBldr.Append(k)
		valBldr.Append(v)
	}
}

// writeConcatenated embeds a table's accumulated flush batches as the
// single Arrow IPC file spec.md §3 expects for each table, merging them
// first if more than one flush occurred.
func writeConcatenated(buf *bytes.Buffer, batches [][]byte) span {
	start := int64(buf.Len())
	merged := mergeIPCBatches(batches)
	buf.Write(merged)
	return span{Offset: start, Length: int64(len(merged))}
}

func writeBytesSpan(buf *bytes.Buffer, data []byte) span {
	start := int64(buf.Len())
	buf.Write(data)
	return span{Offset: start, Length: int64(len(data))}
}

// mergeIPCBatches re-reads each standalone single-batch IPC file produced
// while streaming writes and re-emits them as the record batches of one
// Arrow IPC file, so the on-disk table is exactly the single embedded
// Arrow IPC file spec.md §3 describes regardless of how many times the
// Writer flushed.
func mergeIPCBatches(batches [][]byte) []byte {
	if len(batches) == 0 {
		return nil
	}
	if len(batches) == 1 {
		return batches[0]
	}

	var schema *arrow.Schema
	var records []arrow.Record
	for _, b := range batches {
		r, err := ipc.NewFileReader(bytes.NewReader(b))
		if err != nil {
			continue
		}
		if schema == nil {
			schema = r.Schema()
		}
		for i := 0; i < r.NumRecords(); i++ {
			rec, err := r.Record(i)
			if err != nil {
				continue
			}
			rec.Retain()
			records = append(records, rec)
		}
		r.Close()
	}

	var out bytes.Buffer
	w, err := ipc.NewFileWriter(&out, ipc.WithSchema(schema))
	if err != nil {
		return batches[0]
	}
	for _, rec := range records {
		_ = w.Write(rec)
		rec.Release()
	}
	w.Close()
	return out.Bytes()
}
