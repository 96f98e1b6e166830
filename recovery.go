// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"

	"github.com/nanoporetech/pod5/internal/log"
)

// RecoveryOptions configures Recover.
type RecoveryOptions struct {
	SoftwareName string
	Logger       log.Logger
}

// RecoveryReport summarises what Recover salvaged.
type RecoveryReport struct {
	// AlreadyValid is true when path was already a sealed file; Recover
	// only performed version normalisation (spec.md §4.7 idempotence).
	AlreadyValid        bool
	ReadsRecovered      int
	ReadsDropped        int
	SignalRowsRecovered int
}

// Recover reconstructs a readable container at outPath from path, whose
// footer is missing or corrupt (spec.md §4.7). If path is already a valid
// sealed file, Recover copies it through unchanged except for a refreshed
// version tag (idempotence).
func Recover(path, outPath string, opts *RecoveryOptions) (*RecoveryReport, error) {
	o := RecoveryOptions{}
	if opts != nil {
		o = *opts
	}
	if o.SoftwareName == "" {
		o.SoftwareName = DefaultSoftwareName
	}
	logger := log.NewHelper(o.Logger)

	if cf, err := openFile(path); err == nil {
		defer cf.close()
		if err := passthroughNormalised(cf, outPath); err != nil {
			return nil, err
		}
		return &RecoveryReport{AlreadyValid: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErrorf("read", err)
	}
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, ErrNotAPod5File
	}

	segments := splitSections(data[len(Magic):])
	if len(segments) < 3 {
		return nil, fmt.Errorf("pod5: recovery found only %d of 3 required table sections", len(segments))
	}

	signalRecs, err := tolerantReadRecords(segments[0])
	if err != nil {
		logger.Warnf("recovery: signal table unreadable beyond recovered batches: %v", err)
	}
	readsRecs, err := tolerantReadRecords(segments[1])
	if err != nil {
		logger.Warnf("recovery: reads table unreadable beyond recovered batches: %v", err)
	}
	runInfoRecs, err := tolerantReadRecords(segments[2])
	if err != nil {
		logger.Warnf("recovery: run-info table unreadable beyond recovered batches: %v", err)
	}

	runInfoByID := indexRunInfo(runInfoRecs)
	signalRows := indexSignalRows(signalRecs)
	lookupRunInfo := func(id string) (RunInfo, error) {
		ri, ok := runInfoByID[id]
		if !ok {
			return RunInfo{}, fmt.Errorf("pod5: recovery: run-info %q not found", id)
		}
		return ri, nil
	}

	w := NewWriter(&WriterOptions{SoftwareName: o.SoftwareName, Logger: o.Logger})
	report := &RecoveryReport{}

	for _, rec := range readsRecs {
		for row := 0; row < int(rec.NumRows()); row++ {
			rr, err := decodeReadsRow(rec, row, lookupRunInfo)
			if err != nil {
				report.ReadsDropped++
				continue
			}
			cr, ok := reconcileSignal(rr, signalRows)
			if !ok {
				report.ReadsDropped++
				continue
			}
			if err := w.Add(cr); err != nil {
				report.ReadsDropped++
				continue
			}
			report.ReadsRecovered++
			report.SignalRowsRecovered += len(cr.SignalChunks)
		}
	}

	if err := w.Close(outPath); err != nil {
		return nil, err
	}
	return report, nil
}

// passthroughNormalised copies an already-valid file to outPath, rewriting
// only its footer's Version field to FormatVersion if it differs.
func passthroughNormalised(cf *file, outPath string) error {
	if cf.footer.Version == FormatVersion {
		return os.WriteFile(outPath, cf.data, 0o644)
	}

	newFooter := *cf.footer
	newFooter.Version = FormatVersion
	encoded := newFooter.encode()

	var buf bytes.Buffer
	buf.Write(cf.data[:cf.footer.IndexTable.end()])
	buf.Write(sectionMarker[:])
	buf.Write(encoded)
	var lenField [footerLengthFieldSize]byte
	binary.LittleEndian.PutUint32(lenField[:], uint32(len(encoded)))
	buf.Write(lenField[:])
	buf.Write(Magic[:])

	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

// splitSections splits data (everything after the leading Magic) on
// sectionMarker, dropping the markers themselves. The final element may be
// a partial or absent trailing section if the writer crashed mid-table.
func splitSections(data []byte) [][]byte {
	var segments [][]byte
	for {
		idx := bytes.Index(data, sectionMarker[:])
		if idx < 0 {
			if len(data) > 0 {
				segments = append(segments, data)
			}
			return segments
		}
		segments = append(segments, data[:idx])
		data = data[idx+len(sectionMarker):]
	}
}

// tolerantReadRecords opens segment as a standalone Arrow IPC file and
// reads every batch, stopping (without failing) at the first one that
// can't be decoded, discarding the partial trailing batch. An error is
// returned only when not even the file's own header/footer could be
// parsed, meaning nothing at all was recovered from segment.
func tolerantReadRecords(segment []byte) ([]arrow.Record, error) {
	r, err := ipc.NewFileReader(bytes.NewReader(segment))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []arrow.Record
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			break
		}
		rec.Retain()
		out = append(out, rec)
	}
	return out, nil
}

// signalRowEntry is one recovered signal row, keyed by its position in the
// original signal_row_refs numbering (a running row count across batches).
type signalRowEntry struct {
	readID     ReadID
	samples    uint32
	compressed []byte
}

// indexSignalRows flattens recovered signal-table batches into a lookup
// keyed by the same linear (batch, row) numbering the reads table's
// signal_row_refs column uses.
func indexSignalRows(recs []arrow.Record) map[uint64]signalRowEntry {
	out := make(map[uint64]signalRowEntry)
	var ref uint64
	for _, rec := range recs {
		idCol := rec.Column(0).(*array.FixedSizeBinary)
		samplesCol := rec.Column(1).(*array.Uint32)
		signalCol := rec.Column(2).(*array.LargeBinary)
		for row := 0; row < int(rec.NumRows()); row++ {
			var id ReadID
			copy(id[:], idCol.Value(row))
			out[ref] = signalRowEntry{readID: id, samples: samplesCol.Value(row), compressed: signalCol.Value(row)}
			ref++
		}
	}
	return out
}

func indexRunInfo(recs []arrow.Record) map[string]RunInfo {
	out := make(map[string]RunInfo)
	for _, rec := range recs {
		idCol := rec.Column(0).(*array.String)
		for row := 0; row < int(rec.NumRows()); row++ {
			ri := decodeRunInfoRow(rec, row)
			out[idCol.Value(row)] = ri
		}
	}
	return out
}

// reconcileSignal resolves rr's signal-row references against the
// recovered signal rows, verifying the redundant read-id column on each
// referenced row matches rr.ReadID. If any reference is missing, out of
// range, or owned by a different read, the whole read is dropped (spec.md
// §4.7 "drop any read record whose referenced signal rows are not all
// present").
func reconcileSignal(rr *ReadRecord, signalRows map[uint64]signalRowEntry) (CompressedRead, bool) {
	chunks := make([][]byte, len(rr.SignalRowRefs))
	lengths := make([]uint32, len(rr.SignalRowRefs))

	for i, ref := range rr.SignalRowRefs {
		entry, ok := signalRows[ref]
		if !ok || entry.readID != rr.ReadID {
			return CompressedRead{}, false
		}
		chunks[i] = entry.compressed
		lengths[i] = entry.samples
	}

	return CompressedRead{
		BaseRead:           rr.BaseRead,
		SignalChunks:       chunks,
		SignalChunkLengths: lengths,
	}, true
}
