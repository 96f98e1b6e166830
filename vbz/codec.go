// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vbz

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrTruncated is returned when a StreamVByte16 stream ends before the
// requested number of values has been decoded.
var ErrTruncated = errors.New("vbz: truncated streamvbyte data")

// DefaultChunkSize is the number of samples a Writer packs into one signal
// row by default (spec: chunked signal storage, default 102,400 samples).
const DefaultChunkSize = 102_400

// encoders/decoders are expensive to construct, so the package keeps one of
// each around, guarded the way a concurrent-safe lazy singleton would be in
// the teacher's own style of wrapping a C library handle behind a package
// var + sync.Once.
var (
	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
)

func encoder() (*zstd.Encoder, error) {
	encOnce.Do(func() {
		enc, encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return enc, encErr
}

func decoder() (*zstd.Decoder, error) {
	decOnce.Do(func() {
		dec, decErr = zstd.NewReader(nil)
	})
	return dec, decErr
}

// CompressedMaxSize returns a tight upper bound on the compressed length of
// an n-sample buffer, for callers that want to preallocate a destination
// buffer before calling Compress.
func CompressedMaxSize(n int) int {
	// Worst case: every value needs two bytes, plus one control byte per
	// group of 8, then zstd's own worst-case bound for incompressible input
	// (ZSTD_COMPRESSBOUND).
	numGroups := (n + groupSize - 1) / groupSize
	svbWorst := numGroups + 2*n
	bound := svbWorst + svbWorst>>8
	if svbWorst < 128<<10 {
		bound += (128<<10 - svbWorst) >> 11
	}
	return bound
}

// Compress encodes a buffer of int16 samples: zig-zag, StreamVByte16, then
// Zstandard. An empty input encodes to an empty byte slice.
func Compress(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return []byte{}, nil
	}

	zz := make([]uint16, len(samples))
	zigzagEncodeSlice(zz, samples)

	svb := make([]byte, 0, svbEncodedLen(zz))
	svb = svbEncode(svb, zz)

	enc, err := encoder()
	if err != nil {
		return nil, fmt.Errorf("vbz: init zstd encoder: %w", err)
	}
	return enc.EncodeAll(svb, nil), nil
}

// Decompress reverses Compress, returning exactly expectedSampleCount int16
// samples. It returns an error when the data holds fewer samples than
// expected or has bytes left over after expectedSampleCount samples.
func Decompress(compressed []byte, expectedSampleCount int) ([]int16, error) {
	if expectedSampleCount == 0 {
		if len(compressed) != 0 {
			return nil, fmt.Errorf("vbz: expected 0 samples but got %d compressed bytes", len(compressed))
		}
		return []int16{}, nil
	}
	if len(compressed) == 0 {
		return nil, fmt.Errorf("vbz: empty compressed buffer for %d expected samples", expectedSampleCount)
	}

	dec, err := decoder()
	if err != nil {
		return nil, fmt.Errorf("vbz: init zstd decoder: %w", err)
	}
	svb, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("vbz: zstd decode: %w", err)
	}

	zz, consumed, err := svbDecode(svb, expectedSampleCount)
	if err != nil {
		return nil, fmt.Errorf("vbz: streamvbyte decode: %w", err)
	}
	if consumed != len(svb) {
		return nil, fmt.Errorf("vbz: %d trailing bytes after decoding %d samples",
			len(svb)-consumed, expectedSampleCount)
	}

	samples := make([]int16, expectedSampleCount)
	zigzagDecodeSlice(samples, zz)
	return samples, nil
}

// ChunkSamples splits samples into fixed-size chunks of at most chunkSize
// samples each, preserving order. Used by Writer to bound per-row decode
// memory and to permit partial-range access without decoding a whole read.
func ChunkSamples(samples []int16, chunkSize int) [][]int16 {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(samples) == 0 {
		return nil
	}
	var chunks [][]int16
	for i := 0; i < len(samples); i += chunkSize {
		end := i + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunks = append(chunks, samples[i:end])
	}
	return chunks
}

// CompressChunked splits samples into chunkSize chunks and compresses each,
// returning the compressed chunk bytes and their uncompressed lengths in
// step. This mirrors the original vbz_compress_signal_chunked helper.
func CompressChunked(samples []int16, chunkSize int) (chunks [][]byte, lengths []uint32, err error) {
	for _, c := range ChunkSamples(samples, chunkSize) {
		compressed, err := Compress(c)
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, compressed)
		lengths = append(lengths, uint32(len(c)))
	}
	return chunks, lengths, nil
}

// DecompressChunked reverses CompressChunked, concatenating the decoded
// chunks in order.
func DecompressChunked(chunks [][]byte, lengths []uint32) ([]int16, error) {
	if len(chunks) != len(lengths) {
		return nil, fmt.Errorf("vbz: %d chunks but %d lengths", len(chunks), len(lengths))
	}
	var total int
	for _, l := range lengths {
		total += int(l)
	}
	out := make([]int16, 0, total)
	for i, c := range chunks {
		samples, err := Decompress(c, int(lengths[i]))
		if err != nil {
			return nil, fmt.Errorf("vbz: chunk %d: %w", i, err)
		}
		out = append(out, samples...)
	}
	return out, nil
}
