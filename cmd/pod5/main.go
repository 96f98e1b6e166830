// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pod5 "github.com/nanoporetech/pod5"
)

var debug = os.Getenv("POD5_DEBUG") == "1"

func fail(err error) {
	if debug {
		fmt.Fprintf(os.Stderr, "pod5: %+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "pod5: %s\n", err)
	}
	os.Exit(1)
}

func prettyPrint(v interface{}) string {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(buf)
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "pod5",
		Short: "Read, write and maintain POD5 nanopore signal files",
		Long:  "pod5 inspects, merges, subsets and repairs POD5 files, the columnar container format used to store nanopore sequencing reads and their signal traces.",
	}

	rootCmd.AddCommand(
		newInspectCmd(),
		newViewCmd(),
		newRecoverCmd(),
		newMergeCmd(),
		newRepackCmd(),
		newFilterCmd(),
		newSubsetCmd(),
		newUpdateCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fail(err)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the format version this build reads and writes",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(pod5.FormatVersion)
		},
	}
}
