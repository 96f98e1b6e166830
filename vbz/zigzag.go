// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package vbz implements the signal codec used to store POD5 signal chunks:
// a zig-zag transform, StreamVByte16 variable-length encoding, and
// Zstandard compression, composed in that order. See generate_shuffle_tables
// in the original C++ sources for the bit layout this package reproduces.
package vbz

// zigzagEncode maps a signed 16-bit sample to an unsigned 16-bit value so
// that small-magnitude values (positive or negative) map to small unsigned
// integers, which is what lets StreamVByte16 pack them into one byte.
func zigzagEncode(n int16) uint16 {
	return uint16((n << 1) ^ (n >> 15))
}

// zigzagDecode is the inverse of zigzagEncode.
func zigzagDecode(u uint16) int16 {
	return int16((u >> 1) ^ -(u & 1))
}

func zigzagEncodeSlice(dst []uint16, src []int16) {
	for i, v := range src {
		dst[i] = zigzagEncode(v)
	}
}

func zigzagDecodeSlice(dst []int16, src []uint16) {
	for i, v := range src {
		dst[i] = zigzagDecode(v)
	}
}
