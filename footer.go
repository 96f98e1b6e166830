// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// span is an (offset, length) pair locating an embedded table within the
// file, exactly as spec.md §3/§6 describe for the footer's table locations.
type span struct {
	Offset int64
	Length int64
}

func (s span) end() int64 { return s.Offset + s.Length }

// footer is the trailing record described by spec.md §3: file UUID, file
// version, writing software, the three (now four, see SPEC_FULL.md §4.4)
// embedded-file locations, and the saved batch-size parameters.
type footer struct {
	FileUUID            [16]byte
	Version             string
	VersionPreMigration string
	WritingSoftware     string

	SignalTable  span
	ReadsTable   span
	RunInfoTable span
	IndexTable   span

	ReadBatchSize       uint32
	SignalBatchRowCount uint32

	// SignalBatchRowCounts holds the actual row count of each on-disk signal
	// batch, in batch order. A signal-row ref is resolved against the
	// cumulative sums of this slice, not by dividing by SignalBatchRowCount,
	// because an explicit Flush or a read whose chunks straddle the nominal
	// batch size can leave batches short.
	SignalBatchRowCounts []uint32
}

// encode serialises the footer to a self-contained byte slice: a small
// fixed header of uint32-length-prefixed strings and spans, with no
// external schema dependency, so recovery (§4.7) can rebuild one without
// needing any of the Arrow machinery to be intact.
func (f *footer) encode() []byte {
	var buf bytes.Buffer
	buf.Write(f.FileUUID[:])
	writeString(&buf, f.Version)
	writeString(&buf, f.VersionPreMigration)
	writeString(&buf, f.WritingSoftware)
	writeSpan(&buf, f.SignalTable)
	writeSpan(&buf, f.ReadsTable)
	writeSpan(&buf, f.RunInfoTable)
	writeSpan(&buf, f.IndexTable)
	_ = binary.Write(&buf, binary.LittleEndian, f.ReadBatchSize)
	_ = binary.Write(&buf, binary.LittleEndian, f.SignalBatchRowCount)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(f.SignalBatchRowCounts)))
	for _, n := range f.SignalBatchRowCounts {
		_ = binary.Write(&buf, binary.LittleEndian, n)
	}
	return buf.Bytes()
}

// decodeFooter parses a footer previously produced by encode.
func decodeFooter(data []byte) (*footer, error) {
	r := bytes.NewReader(data)
	f := &footer{}

	if _, err := r.Read(f.FileUUID[:]); err != nil {
		return nil, fmt.Errorf("%w: file uuid: %v", ErrTruncatedFooter, err)
	}

	var err error
	if f.Version, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrTruncatedFooter, err)
	}
	if f.VersionPreMigration, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: pre-migration version: %v", ErrTruncatedFooter, err)
	}
	if f.WritingSoftware, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: writing software: %v", ErrTruncatedFooter, err)
	}
	if f.SignalTable, err = readSpan(r); err != nil {
		return nil, fmt.Errorf("%w: signal table span: %v", ErrTruncatedFooter, err)
	}
	if f.ReadsTable, err = readSpan(r); err != nil {
		return nil, fmt.Errorf("%w: reads table span: %v", ErrTruncatedFooter, err)
	}
	if f.RunInfoTable, err = readSpan(r); err != nil {
		return nil, fmt.Errorf("%w: run-info table span: %v", ErrTruncatedFooter, err)
	}
	if f.IndexTable, err = readSpan(r); err != nil {
		return nil, fmt.Errorf("%w: index table span: %v", ErrTruncatedFooter, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &f.ReadBatchSize); err != nil {
		return nil, fmt.Errorf("%w: read batch size: %v", ErrTruncatedFooter, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &f.SignalBatchRowCount); err != nil {
		return nil, fmt.Errorf("%w: signal batch row count: %v", ErrTruncatedFooter, err)
	}
	var numBatches uint32
	if err := binary.Read(r, binary.LittleEndian, &numBatches); err != nil {
		return nil, fmt.Errorf("%w: signal batch row counts length: %v", ErrTruncatedFooter, err)
	}
	f.SignalBatchRowCounts = make([]uint32, numBatches)
	for i := range f.SignalBatchRowCounts {
		if err := binary.Read(r, binary.LittleEndian, &f.SignalBatchRowCounts[i]); err != nil {
			return nil, fmt.Errorf("%w: signal batch row counts[%d]: %v", ErrTruncatedFooter, i, err)
		}
	}
	return f, nil
}

// validate checks that every span named by the footer lies inside a file of
// the given total size, per spec.md §4.1's Open contract.
func (f *footer) validate(fileSize int64) error {
	for name, s := range map[string]span{
		"signal table":   f.SignalTable,
		"reads table":    f.ReadsTable,
		"run-info table": f.RunInfoTable,
		"index table":    f.IndexTable,
	} {
		if s.Offset < 0 || s.Length < 0 || s.end() > fileSize {
			return fmt.Errorf("%w: %s span [%d,%d) outside file of size %d",
				ErrTruncatedFooter, name, s.Offset, s.end(), fileSize)
		}
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeSpan(buf *bytes.Buffer, s span) {
	_ = binary.Write(buf, binary.LittleEndian, s.Offset)
	_ = binary.Write(buf, binary.LittleEndian, s.Length)
}

func readSpan(r *bytes.Reader) (span, error) {
	var s span
	if err := binary.Read(r, binary.LittleEndian, &s.Offset); err != nil {
		return span{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Length); err != nil {
		return span{}, err
	}
	return s, nil
}
