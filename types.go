// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"fmt"

	"github.com/google/uuid"
)

// ReadID is the opaque 16-byte read identifier. Its natural string form is
// the canonical dashed UUID representation, but the bytes themselves carry
// no semantics the library depends on.
type ReadID [16]byte

// String renders the canonical dashed form, e.g.
// "00000000-0000-0000-0000-000000000001".
func (id ReadID) String() string {
	return uuid.UUID(id).String()
}

// ParseReadID parses the canonical dashed form back into a ReadID.
func ParseReadID(s string) (ReadID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ReadID{}, fmt.Errorf("pod5: invalid read id %q: %w", s, err)
	}
	return ReadID(u), nil
}

// EndReasonKind is the closed set of reasons a read can terminate.
type EndReasonKind uint8

// The closed set of end-reasons. Values are stable and match the on-disk
// dictionary-index assignment order used by the original implementation.
const (
	EndReasonUnknown EndReasonKind = iota
	EndReasonMuxChange
	EndReasonUnblockMuxChange
	EndReasonDataServiceUnblockMuxChange
	EndReasonSignalPositive
	EndReasonSignalNegative
)

var endReasonNames = [...]string{
	"unknown",
	"mux_change",
	"unblock_mux_change",
	"data_service_unblock_mux_change",
	"signal_positive",
	"signal_negative",
}

// defaultForced is the per-reason default of the "forced" flag, carried
// from the original writer's EndReason.from_reason_with_default_forced.
var defaultForced = [...]bool{
	false, // unknown
	true,  // mux_change
	true,  // unblock_mux_change
	true,  // data_service_unblock_mux_change
	false, // signal_positive
	false, // signal_negative
}

// String returns the lower-case reason name as stored in the dictionary.
func (r EndReasonKind) String() string {
	if int(r) >= len(endReasonNames) {
		return "unknown"
	}
	return endReasonNames[r]
}

// DefaultForced returns the expected "forced" value for this reason.
func (r EndReasonKind) DefaultForced() bool {
	if int(r) >= len(defaultForced) {
		return false
	}
	return defaultForced[r]
}

// EndReason is the end-reason dictionary value: a reason plus whether the
// break was forced by hardware/software rather than a natural end of read.
type EndReason struct {
	Reason EndReasonKind
	Forced bool
}

// NewEndReason builds an EndReason with the reason's default forced value.
func NewEndReason(reason EndReasonKind) EndReason {
	return EndReason{Reason: reason, Forced: reason.DefaultForced()}
}

// PoreType is an open string newtype naming the pore hardware in a well.
type PoreType string

// Pore describes the sensor that produced a read.
type Pore struct {
	Channel  uint16
	Well     uint8
	PoreType PoreType
}

// Calibration is the linear transform from ADC units to picoamps.
type Calibration struct {
	Offset float32
	Scale  float32
}

// CalibrationFromRange builds a Calibration from an ADC range and digitisation.
func CalibrationFromRange(offset, adcRange, digitisation float32) Calibration {
	return Calibration{Offset: offset, Scale: adcRange / digitisation}
}

// ShiftScale is a pair of floating point shift/scale values, used for both
// the predicted and tracked scaling columns.
type ShiftScale struct {
	Shift float32
	Scale float32
}

// RunInfo is run-level metadata shared by every read from one acquisition.
// Field set and meaning are carried from the original pod5_types.RunInfo
// dataclass; spec.md §4.2 names only a representative subset.
type RunInfo struct {
	AcquisitionID           string
	AcquisitionStartTime    int64 // ms since epoch
	AdcMax                  int16
	AdcMin                  int16
	ContextTags             map[string]string
	ExperimentName          string
	FlowCellID              string
	FlowCellProductCode     string
	ProtocolName            string
	ProtocolRunID           string
	ProtocolStartTime       int64 // ms since epoch
	SampleID                string
	SampleRate              uint16
	SequencingKit           string
	SequencerPosition       string
	SequencerPositionType   string
	Software                string
	SystemName              string
	SystemType              string
	TrackingID              map[string]string
}

// BaseRead is the set of fields shared by Read and CompressedRead: everything
// except the signal payload itself.
type BaseRead struct {
	ReadID                  ReadID
	ReadNumber              uint32
	StartSample             uint64
	Pore                    Pore
	Calibration             Calibration
	MedianBefore            float32
	EndReason               EndReason
	RunInfo                 RunInfo
	NumMinknowEvents        uint64
	TrackedScaling          ShiftScale
	PredictedScaling        ShiftScale
	NumReadsSinceMuxChange  uint32
	TimeSinceMuxChange      float32
}

// Read carries raw, uncompressed int16 signal. Writer.AddReads chunks and
// compresses it at append time.
type Read struct {
	BaseRead
	Signal []int16
}

// NumSamples returns the total sample count of the read's signal.
func (r Read) NumSamples() uint64 { return uint64(len(r.Signal)) }

// CompressedRead carries signal that has already been chunked and compressed
// by the caller (e.g. a Repacker copying rows verbatim between files).
// SignalChunkLengths holds the uncompressed sample count of each chunk in
// SignalChunks, in the order they'll be referenced from the read record.
type CompressedRead struct {
	BaseRead
	SignalChunks       [][]byte
	SignalChunkLengths []uint32
}

// NumSamples returns the total sample count implied by the chunk lengths.
func (r CompressedRead) NumSamples() uint64 {
	var n uint64
	for _, c := range r.SignalChunkLengths {
		n += uint64(c)
	}
	return n
}

// ReadRecord is what the Reader hands back for a stored read: the same
// fields as BaseRead, plus the resolved signal-row references and the
// on-disk sample count (invariant: equal to the sum of referenced chunks'
// sample counts).
type ReadRecord struct {
	BaseRead
	SignalRowRefs []uint64
	NumSamples    uint64

	reader       *Reader
	cachedSignal *preloadedSignal
}

// Signal decompresses and concatenates every signal chunk this read
// references, in order. It borrows nothing from the memory map; the
// returned slice is owned by the caller. If the batch this record came from
// was read with async prefetch enabled, the already-materialised signal is
// returned instead of decoding again.
func (r *ReadRecord) Signal() ([]int16, error) {
	if r.cachedSignal != nil && r.cachedSignal.samples != nil {
		return r.cachedSignal.samples, nil
	}
	if r.reader == nil {
		return nil, fmt.Errorf("pod5: read record is not bound to a reader")
	}
	return r.reader.decodeSignal(r.SignalRowRefs, r.NumSamples)
}

// SampleCount returns the prefetched sample count if one was requested and
// is available, without decompressing the signal.
func (r *ReadRecord) SampleCount() (uint64, bool) {
	if r.cachedSignal != nil && r.cachedSignal.hasCount {
		return r.cachedSignal.count, true
	}
	return 0, false
}
