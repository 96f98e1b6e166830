// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

func newMergeCmd() *cobra.Command {
	var output string
	var duplicateOK bool
	var forceOverwrite bool

	cmd := &cobra.Command{
		Use:   "merge INPUTS...",
		Short: "Combine reads from several files into one output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			if !forceOverwrite {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("output %s already exists", output)
				}
			}
			return runMerge(args, output, duplicateOK)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "merged output path")
	cmd.Flags().BoolVar(&duplicateOK, "duplicate-ok", false, "skip duplicate read ids instead of failing")
	cmd.Flags().BoolVar(&forceOverwrite, "force-overwrite", false, "overwrite an existing output file")

	return cmd
}

func runMerge(inputs []string, output string, duplicateOK bool) error {
	rp := pod5.NewRepacker(nil)
	h := rp.AddOutput(pod5.NewWriter(nil), output)

	seen := make(map[pod5.ReadID]string)

	for _, in := range inputs {
		r, err := pod5.Open(in, nil)
		if err != nil {
			return err
		}

		var ids []pod5.ReadID
		it := r.Reads()
		for {
			rec, ok := it.Next()
			if !ok {
				break
			}
			if owner, dup := seen[rec.ReadID]; dup {
				if !duplicateOK {
					r.Close()
					return fmt.Errorf("duplicate read %s in %s (first seen in %s)", rec.ReadID, in, owner)
				}
				continue
			}
			seen[rec.ReadID] = in
			ids = append(ids, rec.ReadID)
		}

		if len(ids) > 0 {
			if err := rp.AddSelectedReadsToOutput(h, r, ids, pod5.ReadEfficient); err != nil {
				r.Close()
				return err
			}
		}
		r.Close()
	}

	if err := rp.SetOutputFinished(h); err != nil {
		return err
	}
	return rp.Finish()
}
