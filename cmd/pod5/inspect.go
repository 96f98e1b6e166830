// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

type fileSummary struct {
	Path            string `json:"path"`
	FileIdentifier  string `json:"file_identifier"`
	FileVersion     string `json:"file_version"`
	WritingSoftware string `json:"writing_software"`
	ReadCount       int    `json:"read_count"`
	BatchCount      int    `json:"batch_count"`
}

func summarise(path string) (fileSummary, error) {
	r, err := pod5.Open(path, nil)
	if err != nil {
		return fileSummary{}, err
	}
	defer r.Close()
	return fileSummary{
		Path:            path,
		FileIdentifier:  fmt.Sprintf("%x", r.FileIdentifier()),
		FileVersion:     r.FileVersion(),
		WritingSoftware: r.WritingSoftware(),
		ReadCount:       r.Len(),
		BatchCount:      r.BatchCount(),
	}, nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect a POD5 file's structure and contents",
	}
	cmd.AddCommand(newInspectSummaryCmd(), newInspectReadsCmd(), newInspectReadCmd(), newInspectDebugCmd())
	return cmd
}

func newInspectSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary FILE",
		Short: "Print file-level metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := summarise(args[0])
			if err != nil {
				return err
			}
			fmt.Println(prettyPrint(s))
			return nil
		},
	}
}

func newInspectReadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reads FILE",
		Short: "List every read id and sample count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := pod5.Open(args[0], nil)
			if err != nil {
				return err
			}
			defer r.Close()

			it := r.Reads()
			for {
				rec, ok := it.Next()
				if !ok {
					break
				}
				fmt.Printf("%s\t%d\n", rec.ReadID, rec.NumSamples)
			}
			return nil
		},
	}
}

func newInspectReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read FILE ID",
		Short: "Print every field of one read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pod5.ParseReadID(args[1])
			if err != nil {
				return err
			}
			r, err := pod5.Open(args[0], nil)
			if err != nil {
				return err
			}
			defer r.Close()

			rec, ok, err := r.GetRead(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("read %s not found in %s", id, args[0])
			}
			fmt.Println(prettyPrint(rec))
			return nil
		},
	}
}

func newInspectDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug FILE",
		Short: "Print low-level layout details for troubleshooting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := pod5.Open(args[0], nil)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Printf("file_identifier: %x\n", r.FileIdentifier())
			fmt.Printf("file_version: %s\n", r.FileVersion())
			fmt.Printf("writing_software: %s\n", r.WritingSoftware())
			fmt.Printf("read_count: %d\n", r.Len())
			fmt.Printf("batch_count: %d\n", r.BatchCount())

			it := r.Batches()
			for {
				b, ok := it.Next()
				if !ok {
					break
				}
				fmt.Printf("batch[%d]: rows=%d\n", b.Index(), b.NumRows())
				b.Release()
			}
			return nil
		},
	}
}
