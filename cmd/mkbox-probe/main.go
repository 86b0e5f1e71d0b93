// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mkbox/lib/process"
	"github.com/bureau-foundation/mkbox/lib/version"
	"github.com/bureau-foundation/mkbox/sandbox"
)

func main() {
	failed, err := run(os.Args[1:])
	if err != nil {
		process.Fatal(err)
	}
	if failed {
		process.Exit(1)
	}
}

func run(args []string) (bool, error) {
	var (
		uid, gid    int
		category    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("mkbox-probe", pflag.ContinueOnError)
	flagSet.IntVar(&uid, "uid", -1, "expected uid (-1 skips the check)")
	flagSet.IntVar(&gid, "gid", -1, "expected gid (-1 skips the check)")
	flagSet.StringVar(&category, "category", "", "run only probes of this category (filesystem, identity, privilege, network)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if flagSet.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if showVersion {
		version.Print("mkbox-probe")
		return false, nil
	}

	var options sandbox.ProbeOptions
	if uid >= 0 {
		options.UID = &uid
	}
	if gid >= 0 {
		options.GID = &gid
	}

	runner := sandbox.NewProbeRunner(options)
	runner.RunCategory(context.Background(), category)
	runner.PrintResults(os.Stdout)
	return runner.HasFailures(), nil
}
