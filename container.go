// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow/ipc"
	mmap "github.com/edsrzf/mmap-go"
)

// Magic is the fixed 8-byte signature carried at both file start and end,
// following the PNG/HDF5 convention of a high bit, a short ASCII tag and a
// CR/LF/SUB/LF trailer so that text-mode transfers and truncation are both
// detectable at a glance.
var Magic = [8]byte{0x8B, 'P', 'O', 'D', '\r', '\n', 0x1A, '\n'}

// sectionMarker delimits table boundaries within the file body so a scanner
// (§4.7 Recovery) can find them without parsing the Arrow IPC framing of
// whatever came before.
var sectionMarker = [8]byte{0xFF, 'P', 'O', 'D', 'S', 'E', 'C', 0xFF}

const footerLengthFieldSize = 4 // trailing uint32 footer length, before the closing magic

// file is the open container: the memory map, its parsed footer, and one
// Arrow IPC file reader per logical table. It underlies both Reader (read
// path) and the table-location lookups Writer/Repacker/Recovery need.
type file struct {
	data   mmap.MMap
	f      *os.File
	footer *footer

	signalReader  *ipc.FileReader
	readsReader   *ipc.FileReader
	runInfoReader *ipc.FileReader
	indexReader   *ipc.FileReader
}

// openFile memory-maps path, validates the magic and footer, and opens one
// Arrow IPC reader per table by slicing the map to the footer's spans.
// Errors match spec.md §4.1: ErrNotAPod5File, ErrTruncatedFooter,
// ErrVersionUnsupported.
func openFile(path string) (*file, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf("open", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, ioErrorf("mmap", err)
	}

	cf, err := openMapped(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	cf.f = f
	return cf, nil
}

// openMapped parses an already-mapped (or otherwise fully in-memory) byte
// slice. openFile calls it once the file is mapped.
func openMapped(data mmap.MMap) (*file, error) {
	if len(data) < len(Magic)*2+footerLengthFieldSize {
		return nil, ErrNotAPod5File
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, ErrNotAPod5File
	}
	if !bytes.Equal(data[len(data)-len(Magic):], Magic[:]) {
		return nil, ErrNotAPod5File
	}

	footerLenOffset := len(data) - len(Magic) - footerLengthFieldSize
	footerLen := binary.LittleEndian.Uint32(data[footerLenOffset : footerLenOffset+footerLengthFieldSize])
	footerStart := footerLenOffset - int(footerLen)
	if footerStart < len(Magic) {
		return nil, ErrTruncatedFooter
	}

	ft, err := decodeFooter(data[footerStart:footerLenOffset])
	if err != nil {
		return nil, err
	}
	if err := ft.validate(int64(len(data))); err != nil {
		return nil, err
	}
	if err := checkVersionSupported(ft.Version); err != nil {
		return nil, err
	}

	cf := &file{data: data, footer: ft}

	cf.signalReader, err = openTableReader(data, ft.SignalTable)
	if err != nil {
		return nil, fmt.Errorf("pod5: signal table: %w", err)
	}
	cf.readsReader, err = openTableReader(data, ft.ReadsTable)
	if err != nil {
		return nil, fmt.Errorf("pod5: reads table: %w", err)
	}
	cf.runInfoReader, err = openTableReader(data, ft.RunInfoTable)
	if err != nil {
		return nil, fmt.Errorf("pod5: run-info table: %w", err)
	}
	if ft.IndexTable.Length > 0 {
		cf.indexReader, err = openTableReader(data, ft.IndexTable)
		if err != nil {
			return nil, fmt.Errorf("pod5: index table: %w", err)
		}
	}
	return cf, nil
}

func openTableReader(data []byte, s span) (*ipc.FileReader, error) {
	section := data[s.Offset:s.end()]
	return ipc.NewFileReader(bytes.NewReader(section))
}

// checkVersionSupported compares a file's written version against
// FormatVersion. This package accepts any file whose version is <=
// FormatVersion, per spec.md §4.1's version policy.
func checkVersionSupported(written string) error {
	if compareVersions(written, FormatVersion) > 0 {
		return fmt.Errorf("%w: file written with %s, this reader supports up to %s",
			ErrVersionUnsupported, written, FormatVersion)
	}
	return nil
}

// compareVersions compares two dotted numeric semver-ish strings, returning
// -1, 0 or 1. Only runs of digits count as components (other characters are
// skipped) and a missing trailing component compares as zero, which is
// sufficient for the plain "MAJOR.MINOR.PATCH" strings this format uses.
func compareVersions(a, b string) int {
	as, bs := splitVersion(a), splitVersion(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) []int {
	var parts []int
	cur := 0
	started := false
	for _, r := range v {
		if r >= '0' && r <= '9' {
			cur = cur*10 + int(r-'0')
			started = true
			continue
		}
		if started {
			parts = append(parts, cur)
			cur = 0
			started = false
		}
		if r == '.' {
			continue
		}
	}
	if started {
		parts = append(parts, cur)
	}
	return parts
}

// close unmaps the file and closes the underlying descriptor. Safe to call
// more than once.
func (cf *file) close() error {
	var firstErr error
	for _, r := range []*ipc.FileReader{cf.signalReader, cf.readsReader, cf.runInfoReader, cf.indexReader} {
		if r != nil {
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if cf.data != nil {
		if err := cf.data.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		cf.data = nil
	}
	if cf.f != nil {
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		cf.f = nil
	}
	return firstErr
}
