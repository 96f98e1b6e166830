// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vbz

// StreamVByte16 packs a sequence of uint16 values into a control-byte stream
// plus a payload stream. Values are processed in groups of 8: one control
// byte carries 8 one-bit length flags (bit i set means "value i needs two
// bytes"; clear means "value i fits in one byte"), followed immediately by
// the group's payload bytes packed back to back with no padding.
//
// This is a scalar reimplementation of the group/shuffle scheme described in
// the original svb16 shuffle-table generator: the shuffle tables there exist
// to let a SIMD decoder expand a variable-width group into fixed lanes with
// one pshufb; a portable Go implementation gets the same bytes on the wire
// by walking the control byte bit by bit, so the two approaches are
// bit-for-bit compatible even though this one has no tables to look up.
const groupSize = 8

// svbEncodedLen returns the exact encoded length (control bytes + payload)
// for n input values, used by Compress to preallocate.
func svbEncodedLen(values []uint16) int {
	n := len(values)
	numGroups := (n + groupSize - 1) / groupSize
	total := numGroups // one control byte per group
	for _, v := range values {
		if v > 0xFF {
			total += 2
		} else {
			total++
		}
	}
	return total
}

// svbEncode appends the StreamVByte16 encoding of values to dst and returns
// the extended slice.
func svbEncode(dst []byte, values []uint16) []byte {
	for i := 0; i < len(values); i += groupSize {
		group := values[i:min(i+groupSize, len(values))]

		var control byte
		for j, v := range group {
			if v > 0xFF {
				control |= 1 << uint(j)
			}
		}
		dst = append(dst, control)

		for j, v := range group {
			if control&(1<<uint(j)) != 0 {
				dst = append(dst, byte(v), byte(v>>8))
			} else {
				dst = append(dst, byte(v))
			}
		}
	}
	return dst
}

// svbDecode decodes exactly count values from src, returning the values and
// the number of bytes consumed from src.
func svbDecode(src []byte, count int) ([]uint16, int, error) {
	values := make([]uint16, count)
	pos := 0
	for i := 0; i < count; i += groupSize {
		if pos >= len(src) {
			return nil, 0, ErrTruncated
		}
		control := src[pos]
		pos++

		groupLen := min(groupSize, count-i)
		for j := 0; j < groupLen; j++ {
			if control&(1<<uint(j)) != 0 {
				if pos+1 >= len(src) {
					return nil, 0, ErrTruncated
				}
				values[i+j] = uint16(src[pos]) | uint16(src[pos+1])<<8
				pos += 2
			} else {
				if pos >= len(src) {
					return nil, 0, ErrTruncated
				}
				values[i+j] = uint16(src[pos])
				pos++
			}
		}
	}
	return values, pos, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
