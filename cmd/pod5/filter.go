// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

func readIDsFile(path string) ([]pod5.ReadID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []pod5.ReadID
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		id, err := pod5.ParseReadID(line)
		if err != nil {
			return nil, fmt.Errorf("parsing read id %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

func newFilterCmd() *cobra.Command {
	var idsPath, output string
	var missingOK bool

	cmd := &cobra.Command{
		Use:   "filter INPUTS...",
		Short: "Copy only the reads named by --ids into a new output file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if idsPath == "" {
				return fmt.Errorf("--ids is required")
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			ids, err := readIDsFile(idsPath)
			if err != nil {
				return err
			}
			return runFilter(args, ids, output, missingOK)
		},
	}

	cmd.Flags().StringVar(&idsPath, "ids", "", "file listing one read id per line")
	cmd.Flags().StringVar(&output, "output", "", "output path")
	cmd.Flags().BoolVar(&missingOK, "missing-ok", false, "ignore ids not present in any input")

	return cmd
}

func runFilter(inputs []string, ids []pod5.ReadID, output string, missingOK bool) error {
	rp := pod5.NewRepacker(nil)
	h := rp.AddOutput(pod5.NewWriter(nil), output)

	remaining := make(map[pod5.ReadID]bool, len(ids))
	for _, id := range ids {
		remaining[id] = true
	}

	for _, in := range inputs {
		if len(remaining) == 0 {
			break
		}
		r, err := pod5.Open(in, nil)
		if err != nil {
			return err
		}

		var present []pod5.ReadID
		for id := range remaining {
			if _, ok, err := r.GetRead(id); err == nil && ok {
				present = append(present, id)
			}
		}
		if len(present) > 0 {
			if err := rp.AddSelectedReadsToOutput(h, r, present, pod5.ReadEfficient); err != nil {
				r.Close()
				return err
			}
			for _, id := range present {
				delete(remaining, id)
			}
		}
		r.Close()
	}

	if len(remaining) > 0 && !missingOK {
		if err := rp.SetOutputFinished(h); err != nil {
			return err
		}
		return fmt.Errorf("%d requested read id(s) not found in any input", len(remaining))
	}

	if err := rp.SetOutputFinished(h); err != nil {
		return err
	}
	return rp.Finish()
}
