// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

// viewFields are the columns "view" knows how to print, in default order.
var viewFields = []string{"read_id", "channel", "well", "pore_type", "start_sample", "num_samples", "end_reason", "run_id"}

func fieldValue(rec *pod5.ReadRecord, name string) string {
	switch name {
	case "read_id":
		return rec.ReadID.String()
	case "channel":
		return fmt.Sprint(rec.Pore.Channel)
	case "well":
		return fmt.Sprint(rec.Pore.Well)
	case "pore_type":
		return string(rec.Pore.PoreType)
	case "start_sample":
		return fmt.Sprint(rec.StartSample)
	case "num_samples":
		return fmt.Sprint(rec.NumSamples)
	case "end_reason":
		return rec.EndReason.Reason.String()
	case "run_id":
		return rec.RunInfo.ProtocolRunID
	default:
		return ""
	}
}

func selectFields(include, exclude []string) []string {
	fields := viewFields
	if len(include) > 0 {
		fields = include
	}
	if len(exclude) == 0 {
		return fields
	}
	excluded := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		excluded[f] = true
	}
	var out []string
	for _, f := range fields {
		if !excluded[f] {
			out = append(out, f)
		}
	}
	return out
}

func newViewCmd() *cobra.Command {
	var include, exclude []string
	var separator string
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "view INPUTS...",
		Short: "Print a row per read across one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := selectFields(include, exclude)
			if idsOnly {
				fields = []string{"read_id"}
			}

			for _, path := range args {
				r, err := pod5.Open(path, nil)
				if err != nil {
					return err
				}
				if err := viewFile(r, fields, separator); err != nil {
					r.Close()
					return err
				}
				r.Close()
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&include, "include", nil, "fields to print, in order (default: all)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "fields to drop from the default/included set")
	cmd.Flags().StringVar(&separator, "separator", "\t", "field separator")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "print only read ids")

	return cmd
}

func viewFile(r *pod5.Reader, fields []string, separator string) error {
	it := r.Reads()
	for {
		rec, ok := it.Next()
		if !ok {
			return nil
		}
		values := make([]string, len(fields))
		for i, f := range fields {
			values[i] = fieldValue(rec, f)
		}
		fmt.Println(strings.Join(values, separator))
	}
}
