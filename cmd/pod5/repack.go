// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

func newRepackCmd() *cobra.Command {
	var output string
	var threads int

	cmd := &cobra.Command{
		Use:   "repack INPUTS...",
		Short: "Rewrite each input into a fresh file of the same name under OUT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			if threads <= 0 {
				threads = pod5.DefaultDatasetParallelism
			}
			return runRepack(args, output, threads)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output directory")
	cmd.Flags().IntVar(&threads, "threads", 0, "number of inputs fed concurrently")

	return cmd
}

func runRepack(inputs []string, outDir string, threads int) error {
	rp := pod5.NewRepacker(nil)

	sem := make(chan struct{}, threads)
	errc := make(chan error, len(inputs))

	for _, in := range inputs {
		in := in
		out := filepath.Join(outDir, filepath.Base(in))
		h := rp.AddOutput(pod5.NewWriter(nil), out)

		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			errc <- feedRepackInput(rp, h, in)
		}()
	}

	var firstErr error
	for range inputs {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return rp.Finish()
}

func feedRepackInput(rp *pod5.Repacker, h pod5.OutputHandle, path string) error {
	r, err := pod5.Open(path, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := rp.AddAllReadsToOutput(h, r); err != nil {
		rp.SetOutputFinished(h)
		return err
	}
	return rp.SetOutputFinished(h)
}
