// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pod5

import (
	"github.com/apache/arrow/go/v14/arrow"
)

// Schema metadata keys, carried on the reads-table schema. Readers must
// honour them; writers must set them (spec.md §6).
const (
	metaFileIdentifier = "MINKNOW:file_identifier"
	metaSoftware       = "MINKNOW:software"
	metaPod5Version    = "MINKNOW:pod5_version"
)

// Extension type tags carried on specific columns. Readers must tolerate
// and strip unknown extension tags on other columns (spec.md §6).
const (
	extensionTagVbz  = "minknow.vbz"
	extensionTagUUID = "minknow.uuid"
)

func dictType(valueType arrow.DataType) *arrow.DictionaryType {
	return &arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Int32,
		ValueType: valueType,
		Ordered:   false,
	}
}

// readsTableSchema builds the reads-batch schema from spec.md §4.2. The
// MINKNOW:* metadata values are filled in per-file by the Writer.
func readsTableSchema(fileID, software, version string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "read_id", Type: &arrow.FixedSizeBinaryType{ByteWidth: 16}, Metadata: arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{extensionTagUUID})},
		{Name: "read_number", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "start_sample", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "channel", Type: arrow.PrimitiveTypes.Uint16},
		{Name: "well", Type: arrow.PrimitiveTypes.Uint8},
		{Name: "pore_type", Type: dictType(arrow.BinaryTypes.String)},
		{Name: "calibration_offset", Type: arrow.PrimitiveTypes.Float32},
		{Name: "calibration_scale", Type: arrow.PrimitiveTypes.Float32},
		{Name: "median_before", Type: arrow.PrimitiveTypes.Float32},
		{Name: "end_reason", Type: dictType(arrow.BinaryTypes.String)},
		{Name: "end_reason_forced", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "run_info", Type: dictType(arrow.BinaryTypes.String)},
		{Name: "signal_row_refs", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint64)},
		{Name: "num_minknow_events", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "tracked_scaling_scale", Type: arrow.PrimitiveTypes.Float32},
		{Name: "tracked_scaling_shift", Type: arrow.PrimitiveTypes.Float32},
		{Name: "predicted_scaling_scale", Type: arrow.PrimitiveTypes.Float32},
		{Name: "predicted_scaling_shift", Type: arrow.PrimitiveTypes.Float32},
		{Name: "num_reads_since_mux_change", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "time_since_mux_change", Type: arrow.PrimitiveTypes.Float32},
		{Name: "num_samples", Type: arrow.PrimitiveTypes.Uint64},
	}
	md := arrow.NewMetadata(
		[]string{metaFileIdentifier, metaSoftware, metaPod5Version},
		[]string{fileID, software, version},
	)
	return arrow.NewSchema(fields, &md)
}

// signalTableSchema builds the signal-batch schema from spec.md §4.2.
// uncompressed controls whether "signal" is plain large-binary (small
// writer variants) or carries the minknow.vbz extension tag (the default).
func signalTableSchema(uncompressed bool) *arrow.Schema {
	signalField := arrow.Field{Name: "signal", Type: arrow.BinaryTypes.LargeBinary}
	if !uncompressed {
		signalField.Metadata = arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{extensionTagVbz})
	}
	fields := []arrow.Field{
		{Name: "read_id", Type: &arrow.FixedSizeBinaryType{ByteWidth: 16}, Metadata: arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{extensionTagUUID})},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
		signalField,
	}
	return arrow.NewSchema(fields, nil)
}

// runInfoTableSchema builds the run-info dictionary schema from spec.md §4.2.
func runInfoTableSchema() *arrow.Schema {
	strMap := arrow.MapOf(arrow.BinaryTypes.String, arrow.BinaryTypes.String)
	fields := []arrow.Field{
		{Name: "acquisition_id", Type: arrow.BinaryTypes.String},
		{Name: "acquisition_start_time", Type: arrow.PrimitiveTypes.Int64},
		{Name: "adc_max", Type: arrow.PrimitiveTypes.Int16},
		{Name: "adc_min", Type: arrow.PrimitiveTypes.Int16},
		{Name: "context_tags", Type: strMap},
		{Name: "experiment_name", Type: arrow.BinaryTypes.String},
		{Name: "flow_cell_id", Type: arrow.BinaryTypes.String},
		{Name: "flow_cell_product_code", Type: arrow.BinaryTypes.String},
		{Name: "protocol_name", Type: arrow.BinaryTypes.String},
		{Name: "protocol_run_id", Type: arrow.BinaryTypes.String},
		{Name: "protocol_start_time", Type: arrow.PrimitiveTypes.Int64},
		{Name: "sample_id", Type: arrow.BinaryTypes.String},
		{Name: "sample_rate", Type: arrow.PrimitiveTypes.Uint16},
		{Name: "sequencing_kit", Type: arrow.BinaryTypes.String},
		{Name: "sequencer_position", Type: arrow.BinaryTypes.String},
		{Name: "sequencer_position_type", Type: arrow.BinaryTypes.String},
		{Name: "software", Type: arrow.BinaryTypes.String},
		{Name: "system_name", Type: arrow.BinaryTypes.String},
		{Name: "system_type", Type: arrow.BinaryTypes.String},
		{Name: "tracking_id", Type: strMap},
	}
	return arrow.NewSchema(fields, nil)
}

// indexTableSchema builds the schema of the persisted read-id -> (batch,row)
// index (§4.4, §6.1 of SPEC_FULL.md: a fourth embedded span referenced from
// the footer, given a concrete shape here since spec.md leaves that open).
func indexTableSchema() *arrow.Schema {
	fields := []arrow.Field{
		{Name: "read_id", Type: &arrow.FixedSizeBinaryType{ByteWidth: 16}},
		{Name: "batch", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "row", Type: arrow.PrimitiveTypes.Uint32},
	}
	return arrow.NewSchema(fields, nil)
}
