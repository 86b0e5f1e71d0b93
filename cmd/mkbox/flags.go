// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mkbox/sandbox"
)

// options is the parsed command line.
type options struct {
	plan    *sandbox.Plan
	profile string
	dryRun  bool
	version bool
	help    bool
}

// rootValue implements -s. A second -s is an error.
type rootValue struct{ plan *sandbox.Plan }

func (v rootValue) String() string     { return v.plan.Root }
func (v rootValue) Set(s string) error { return v.plan.SetRoot(s) }
func (v rootValue) Type() string       { return "path" }

// actionValue implements -b, -t and -D. Every occurrence appends to the
// shared action list, so rules keep their command-line order across flags.
type actionValue struct {
	plan *sandbox.Plan
	kind sandbox.ActionKind
}

func (v actionValue) String() string { return "" }
func (v actionValue) Type() string   { return "rule" }

func (v actionValue) Set(s string) error {
	switch v.kind {
	case sandbox.ActionBind:
		return v.plan.AddBind(s)
	case sandbox.ActionTmpfs:
		v.plan.AddTmpfs(s)
	case sandbox.ActionMkdir:
		v.plan.AddMkdir(s)
	}
	return nil
}

// idValue implements -u and -g.
type idValue struct {
	set func(string) error
}

func (v idValue) String() string     { return "" }
func (v idValue) Set(s string) error { return v.set(s) }
func (v idValue) Type() string       { return "id" }

func newFlagSet(opts *options) *pflag.FlagSet {
	plan := opts.plan
	flagSet := pflag.NewFlagSet("mkbox", pflag.ContinueOnError)
	// Everything after the first non-flag belongs to the target.
	flagSet.SetInterspersed(false)

	flagSet.VarP(rootValue{plan}, "sandbox", "s", "sandbox root directory (absolute, required once)")
	flagSet.VarP(actionValue{plan, sandbox.ActionBind}, "bind", "b", "bind-mount host `src=dst` (dst relative to the root)")
	flagSet.VarP(actionValue{plan, sandbox.ActionTmpfs}, "tmpfs", "t", "mount a 16m tmpfs at `dst`")
	flagSet.VarP(actionValue{plan, sandbox.ActionMkdir}, "mkdir", "D", "create directory `dst` and its parents")
	flagSet.VarP(idValue{plan.SetUID}, "uid", "u", "user id inside the sandbox")
	flagSet.VarP(idValue{plan.SetGID}, "gid", "g", "group id inside the sandbox")
	flagSet.StringVarP(&plan.Dir, "chdir", "d", "", "working directory inside the sandbox")
	flagSet.StringVarP(&plan.Binary, "binary", "B", "", "program to execute instead of the first argument")
	flagSet.BoolVarP(&plan.Quiet, "quiet", "q", false, "suppress progress messages")
	flagSet.StringVarP(&opts.profile, "config", "c", "", "load a YAML or JSONC sandbox profile")
	flagSet.BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the plan and pre-flight checks without running")
	flagSet.BoolVar(&opts.version, "version", false, "print version information")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")
	return flagSet
}

// parseArgs parses the command line. Every parse error is a
// [*sandbox.ConfigError].
func parseArgs(args []string) (*options, error) {
	opts := &options{plan: &sandbox.Plan{}}
	flagSet := newFlagSet(opts)
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		return nil, &sandbox.ConfigError{Problems: []string{err.Error()}}
	}
	opts.plan.Args = flagSet.Args()
	return opts, nil
}

// resolvePlan merges the profile, if any, under the command-line plan.
func resolvePlan(opts *options) (*sandbox.Plan, error) {
	if opts.profile == "" {
		return opts.plan, nil
	}
	profile, err := sandbox.LoadProfile(opts.profile)
	if err != nil {
		return nil, &sandbox.ConfigError{Problems: []string{err.Error()}}
	}
	base, err := profile.Plan(sandbox.DefaultVariables())
	if err != nil {
		return nil, err
	}
	return sandbox.MergePlans(base, opts.plan), nil
}
