// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/moby/sys/reexec"

	"github.com/bureau-foundation/mkbox/lib/cli"
	"github.com/bureau-foundation/mkbox/lib/process"
	"github.com/bureau-foundation/mkbox/lib/version"
	"github.com/bureau-foundation/mkbox/sandbox"
	// Registers the init entry point with reexec.
	_ "github.com/bureau-foundation/mkbox/sandbox/nsinit"
)

func main() {
	// In the re-executed copy this runs the sandbox init and never
	// returns.
	if reexec.Init() {
		return
	}

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if _, ok := sandbox.IsExitError(err); !ok {
			process.Fatal(err)
		}
		process.Exit(exitCode(err))
	}
}

// exitCode is the process status for an error from run. The target's own
// status passes through; every failure of mkbox itself, whether a bad
// command line or a failed bootstrap, is 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := sandbox.IsExitError(err); ok {
		return code
	}
	return 1
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	if opts.help {
		printHelp(stdout)
		return nil
	}
	if opts.version {
		version.Fprint(stdout, "mkbox")
		return nil
	}

	plan, err := resolvePlan(opts)
	if err != nil {
		return err
	}

	logger := cli.NewLogger(os.Stderr, plan.Quiet)

	if opts.dryRun {
		return dryRun(stdout, plan)
	}

	launcher, err := sandbox.NewLauncher(plan, logger)
	if err != nil {
		return err
	}
	return launcher.Run(ctx)
}

// dryRun prints the plan and the pre-flight checks. It fails with a
// configuration error when any check fails.
func dryRun(w io.Writer, plan *sandbox.Plan) error {
	resolved := *plan
	resolved.HostUID = os.Getuid()
	resolved.HostGID = os.Getgid()
	sandbox.PrintPlan(w, &resolved)
	fmt.Fprintln(w)

	validator := sandbox.NewValidator()
	validator.ValidateAll(&resolved, sandbox.DetectCapabilities())
	validator.PrintResults(w)
	if validator.HasErrors() {
		return sandbox.Configf("dry run found problems")
	}
	return nil
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `mkbox runs a program in a minimal namespace sandbox.

Usage:
  mkbox -s <root> [flags] <command> [args...]

The sandbox gets new mount, PID, IPC, UTS, user and network namespaces.
<root> becomes "/", mounted read-only, noexec, nosuid and nodev, so the
command has to come from a bind mount. Rules apply in the order given,
relative to <root>; missing destinations are created.

Flags:
  -s <root>      sandbox root directory (absolute, required once)
  -b <src>=<dst> bind-mount host path src at dst
  -t <dst>       mount a tmpfs (size=16m, nr_inodes=16k) at dst
  -D <dst>       create directory dst and its parents
  -u <uid>       user id inside the sandbox
  -g <gid>       group id inside the sandbox
  -d <dir>       working directory inside the sandbox
  -B <binary>    program to execute instead of the first argument
  -q             suppress progress messages
  -c <profile>   load a YAML or JSONC profile (flags override and append)
  -n             print the plan and pre-flight checks without running
  --version      print version information

Examples:
  mkbox -s /srv/box -b /usr=usr -b /lib64=lib64 -t tmp -u 1000 -g 1000 /usr/bin/id
  mkbox -c box.yaml -n /usr/bin/env
`)
}
