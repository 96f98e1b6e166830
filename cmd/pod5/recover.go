// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

func recoveredPath(path string) string {
	if strings.HasSuffix(path, ".pod5") {
		return strings.TrimSuffix(path, ".pod5") + "_recovered.pod5"
	}
	return path + ".recovered"
}

func newRecoverCmd() *cobra.Command {
	var forceOverwrite bool

	cmd := &cobra.Command{
		Use:   "recover INPUTS...",
		Short: "Rebuild a readable file from one with a missing or corrupt footer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, in := range args {
				out := recoveredPath(in)
				if !forceOverwrite {
					if _, err := os.Stat(out); err == nil {
						return fmt.Errorf("recovery output %s already exists", out)
					}
				}
				report, err := pod5.Recover(in, out, nil)
				if err != nil {
					return fmt.Errorf("recovering %s: %w", in, err)
				}
				if report.AlreadyValid {
					fmt.Printf("%s: already valid, version normalised into %s\n", in, out)
					continue
				}
				fmt.Printf("%s: recovered %d reads (%d dropped, %d signal rows) into %s\n",
					in, report.ReadsRecovered, report.ReadsDropped, report.SignalRowsRecovered, out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceOverwrite, "force-overwrite", false, "overwrite an existing recovery output")
	return cmd
}
