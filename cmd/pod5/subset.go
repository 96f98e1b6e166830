// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

// readSubsetCSV parses a two-column "read_id,output_name" mapping: the
// --csv form of subset's grouping input.
func readSubsetCSV(path string) (map[pod5.ReadID]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := make(map[pod5.ReadID]string, len(records))
	for _, row := range records {
		id, err := pod5.ParseReadID(row[0])
		if err != nil {
			return nil, fmt.Errorf("parsing read id %q: %w", row[0], err)
		}
		out[id] = row[1]
	}
	return out, nil
}

func newSubsetCmd() *cobra.Command {
	var output, csvPath string
	var missingOK, duplicateOK bool

	cmd := &cobra.Command{
		Use:   "subset INPUTS...",
		Short: "Split reads across several output files by a read-id->name mapping",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			grouping, err := readSubsetCSV(csvPath)
			if err != nil {
				return err
			}
			return runSubset(args, grouping, output, missingOK, duplicateOK)
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "read_id,output_name mapping file")
	cmd.Flags().StringVar(&output, "output", "", "output directory")
	cmd.Flags().BoolVar(&missingOK, "missing-ok", false, "ignore mapped ids not present in any input")
	cmd.Flags().BoolVar(&duplicateOK, "duplicate-ok", false, "allow a read id to appear in more than one input")

	return cmd
}

func runSubset(inputs []string, grouping map[pod5.ReadID]string, outDir string, missingOK, duplicateOK bool) error {
	rp := pod5.NewRepacker(nil)
	handles := make(map[string]pod5.OutputHandle)
	for _, name := range grouping {
		if _, ok := handles[name]; ok {
			continue
		}
		handles[name] = rp.AddOutput(pod5.NewWriter(nil), filepath.Join(outDir, name))
	}

	// pending controls which ids are still worth routing: an id drops out
	// once claimed, unless duplicateOK lets it be claimed from every input
	// it appears in. found tracks which ids were ever claimed, for the
	// final missing-ids check.
	pending := make(map[pod5.ReadID]bool, len(grouping))
	for id := range grouping {
		pending[id] = true
	}
	found := make(map[pod5.ReadID]bool, len(grouping))

	for _, in := range inputs {
		if len(pending) == 0 {
			break
		}
		r, err := pod5.Open(in, nil)
		if err != nil {
			return err
		}

		byOutput := make(map[string][]pod5.ReadID)
		for id := range pending {
			if _, ok, err := r.GetRead(id); err == nil && ok {
				name := grouping[id]
				byOutput[name] = append(byOutput[name], id)
			}
		}
		for name, ids := range byOutput {
			if err := rp.AddSelectedReadsToOutput(handles[name], r, ids, pod5.ReadEfficient); err != nil {
				r.Close()
				return err
			}
			for _, id := range ids {
				found[id] = true
				if !duplicateOK {
					delete(pending, id)
				}
			}
		}
		r.Close()
	}

	for _, h := range handles {
		if err := rp.SetOutputFinished(h); err != nil {
			return err
		}
	}

	if len(found) < len(grouping) && !missingOK {
		return fmt.Errorf("%d mapped read id(s) not found in any input", len(grouping)-len(found))
	}
	return rp.Finish()
}
