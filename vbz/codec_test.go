// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vbz

import (
	"math"
	"testing"
)

var roundTripTests = []struct {
	name   string
	signal []int16
}{
	{"empty", []int16{}},
	{"single-zero", []int16{0}},
	{"ramp-1024", rampSignal(1024)},
	{"negative-values", []int16{-1, -2, -100, -32768, 32767, 0, 1}},
	{"not-multiple-of-eight", rampSignal(1003)},
	{"extremes", []int16{math.MinInt16, math.MaxInt16, math.MinInt16, math.MaxInt16}},
}

func rampSignal(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16((i % 65535) - 32768)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, tt := range roundTripTests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress(tt.signal)
			if err != nil {
				t.Fatalf("Compress() failed: %v", err)
			}

			got, err := Decompress(compressed, len(tt.signal))
			if err != nil {
				t.Fatalf("Decompress() failed: %v", err)
			}

			if len(got) != len(tt.signal) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.signal))
			}
			for i := range tt.signal {
				if got[i] != tt.signal[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.signal[i])
				}
			}
		})
	}
}

func TestDecompressWrongCount(t *testing.T) {
	compressed, err := Compress(rampSignal(100))
	if err != nil {
		t.Fatalf("Compress() failed: %v", err)
	}
	if _, err := Decompress(compressed, 99); err == nil {
		t.Fatal("Decompress() with wrong expected count succeeded, want error")
	}
}

func TestCompressedMaxSizeIsUpperBound(t *testing.T) {
	for _, n := range []int{0, 1, 8, 1024, 102_400} {
		signal := rampSignal(n)
		compressed, err := Compress(signal)
		if err != nil {
			t.Fatalf("Compress(%d) failed: %v", n, err)
		}
		if max := CompressedMaxSize(n); len(compressed) > max {
			t.Errorf("CompressedMaxSize(%d) = %d, but actual compressed length is %d", n, max, len(compressed))
		}
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	signal := rampSignal(250_000)
	chunks, lengths, err := CompressChunked(signal, DefaultChunkSize)
	if err != nil {
		t.Fatalf("CompressChunked() failed: %v", err)
	}

	wantChunks := (len(signal) + DefaultChunkSize - 1) / DefaultChunkSize
	if len(chunks) != wantChunks {
		t.Fatalf("got %d chunks, want %d", len(chunks), wantChunks)
	}

	got, err := DecompressChunked(chunks, lengths)
	if err != nil {
		t.Fatalf("DecompressChunked() failed: %v", err)
	}
	if len(got) != len(signal) {
		t.Fatalf("got %d samples, want %d", len(got), len(signal))
	}
	for i := range signal {
		if got[i] != signal[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], signal[i])
		}
	}
}

func TestZigzagMapsSmallMagnitudesSmall(t *testing.T) {
	cases := []struct {
		in   int16
		want uint16
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2, 4},
	}
	for _, c := range cases {
		if got := zigzagEncode(c.in); got != c.want {
			t.Errorf("zigzagEncode(%d) = %d, want %d", c.in, got, c.want)
		}
		if got := zigzagDecode(c.want); got != c.in {
			t.Errorf("zigzagDecode(%d) = %d, want %d", c.want, got, c.in)
		}
	}
}
