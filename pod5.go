// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package pod5 reads and writes POD5 nanopore-signal container files.
//
// A POD5 file bundles three columnar tables (reads, signal, run-info) behind
// a small footer and a pair of magic markers, so that a single file is three
// independently memory-mappable column stores. See Open, Reader and Writer
// for the entry points.
package pod5

import (
	"errors"
	"fmt"
)

// FormatVersion is the schema/layout version written by this package.
const FormatVersion = "0.3.23"

// DefaultSoftwareName is recorded in the footer when callers don't supply one.
const DefaultSoftwareName = "go-pod5"

// DefaultReadBatchSize is the number of read records per reads-table batch.
const DefaultReadBatchSize = 1000

// DefaultSignalBatchSize is the number of signal rows per signal-table batch.
const DefaultSignalBatchSize = 100_000

// DefaultSignalChunkSize is the number of samples compressed into one signal
// row; it bounds decode memory and is the unit partial-range access works at.
const DefaultSignalChunkSize = 102_400

// Errors returned by container Open/Close and the reader/writer/repacker
// surfaces. Callers are expected to match against these with errors.Is.
var (
	// ErrNotAPod5File is returned when the leading or trailing magic
	// signature is absent.
	ErrNotAPod5File = errors.New("pod5: not a pod5 file, magic signature missing")

	// ErrTruncatedFooter is returned when the trailing footer cannot be
	// parsed, or a span it names falls outside the file.
	ErrTruncatedFooter = errors.New("pod5: truncated or unparsable footer")

	// ErrVersionUnsupported is returned when the file's written version is
	// newer than this package knows how to interpret.
	ErrVersionUnsupported = errors.New("pod5: file version unsupported by this reader")

	// ErrCorruptSignal is returned by the signal codec when a decompressed
	// sample count does not match what the caller expected.
	ErrCorruptSignal = errors.New("pod5: corrupt signal, sample count mismatch")

	// ErrMissingReads is returned by PlanTraversal (and anything that calls
	// it) when fewer ids were found than requested and missingOK is false.
	ErrMissingReads = errors.New("pod5: one or more requested read ids were not found")

	// ErrDuplicateReads is returned by the Writer when a read id is added
	// that the file already holds.
	ErrDuplicateReads = errors.New("pod5: duplicate read ids encountered")

	// ErrWriterSealed is returned by Add, AddRead and AddReads when called
	// after Close.
	ErrWriterSealed = errors.New("pod5: writer is closed")

	// ErrReaderClosed names the error of using a Reader after Close. Reader
	// methods do not check for a closed Reader and do not return it.
	ErrReaderClosed = errors.New("pod5: reader is closed")
)

// IoError wraps an underlying storage failure so callers can still recover
// the original error with errors.Unwrap while getting a pod5-flavoured
// message out of Error().
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("pod5: %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

func ioErrorf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}
