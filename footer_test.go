// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import "testing"

func TestFooterEncodeDecodeRoundTrip(t *testing.T) {
	f := &footer{
		FileUUID:             [16]byte{1, 2, 3, 4},
		Version:              "0.3.23",
		VersionPreMigration:  "0.3.20",
		WritingSoftware:      "pod5-test",
		SignalTable:          span{Offset: 8, Length: 100},
		ReadsTable:           span{Offset: 108, Length: 200},
		RunInfoTable:         span{Offset: 308, Length: 50},
		IndexTable:           span{Offset: 358, Length: 40},
		ReadBatchSize:        1000,
		SignalBatchRowCount:  100000,
		SignalBatchRowCounts: []uint32{100000, 100000, 37},
	}

	got, err := decodeFooter(f.encode())
	if err != nil {
		t.Fatalf("decodeFooter: %v", err)
	}
	if got.FileUUID != f.FileUUID {
		t.Fatalf("FileUUID = %v, want %v", got.FileUUID, f.FileUUID)
	}
	if got.Version != f.Version || got.VersionPreMigration != f.VersionPreMigration {
		t.Fatalf("version fields = (%q,%q), want (%q,%q)", got.Version, got.VersionPreMigration, f.Version, f.VersionPreMigration)
	}
	if got.SignalTable != f.SignalTable || got.ReadsTable != f.ReadsTable ||
		got.RunInfoTable != f.RunInfoTable || got.IndexTable != f.IndexTable {
		t.Fatalf("span fields did not round-trip: %+v", got)
	}
	if len(got.SignalBatchRowCounts) != len(f.SignalBatchRowCounts) {
		t.Fatalf("SignalBatchRowCounts length = %d, want %d", len(got.SignalBatchRowCounts), len(f.SignalBatchRowCounts))
	}
	for i, n := range f.SignalBatchRowCounts {
		if got.SignalBatchRowCounts[i] != n {
			t.Fatalf("SignalBatchRowCounts[%d] = %d, want %d", i, got.SignalBatchRowCounts[i], n)
		}
	}
}

func TestFooterEncodeDecodeEmptySignalBatchRowCounts(t *testing.T) {
	f := &footer{WritingSoftware: "pod5-test"}
	got, err := decodeFooter(f.encode())
	if err != nil {
		t.Fatalf("decodeFooter: %v", err)
	}
	if len(got.SignalBatchRowCounts) != 0 {
		t.Fatalf("SignalBatchRowCounts = %v, want empty", got.SignalBatchRowCounts)
	}
}
