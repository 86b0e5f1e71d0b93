// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"syscall"

	"github.com/moby/sys/reexec"

	"github.com/bureau-foundation/mkbox/lib/cli"
	"github.com/bureau-foundation/mkbox/sandbox"
)

func init() {
	reexec.Register(sandbox.InitName, Main)
}

// Main is the entry point of the init process. The binary reaches it
// through reexec.Init when the launcher started it under
// [sandbox.InitName]. It never returns: either the target replaces the
// process or the init exits 1 after reporting the failure.
func Main() {
	os.Exit(run(Direct()))
}

func run(k Kernel) int {
	k.lockOSThread()

	report, err := openPipe(sandbox.ReportFDEnv, "report")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkbox: %v\n", err)
		return 1
	}
	defer report.Close()
	// The report pipe must not leak into the target: its closing tells the
	// launcher the execve succeeded.
	syscall.CloseOnExec(int(report.Fd()))

	plan, err := receivePlan()
	if err != nil {
		fail(report, sandbox.NewReport("setup", sandbox.SetupFDEnv, err))
		return 1
	}

	logger := cli.NewLogger(os.Stderr, plan.Quiet)
	if err := Bootstrap(k, plan, logger); err != nil {
		fail(report, reportFor(err))
		return 1
	}
	return 0
}

// Bootstrap runs the whole sequence for a received plan. On success with
// the real kernel it does not return.
func Bootstrap(k Kernel, plan *sandbox.Plan, logger *slog.Logger) error {
	namespaces, err := Isolate(k, plan, logger)
	if err != nil {
		return err
	}
	identity, err := MapIdentity(k, namespaces, logger)
	if err != nil {
		return err
	}
	filesystem, err := Assemble(k, identity, logger)
	if err != nil {
		return err
	}
	root, err := Seal(k, filesystem, logger)
	if err != nil {
		return err
	}
	return Handoff(k, root, logger)
}

// receivePlan reads the plan from the setup pipe and closes it.
func receivePlan() (*sandbox.Plan, error) {
	setup, err := openPipe(sandbox.SetupFDEnv, "setup")
	if err != nil {
		return nil, err
	}
	defer setup.Close()
	return sandbox.ReadPlan(setup)
}

// openPipe opens the descriptor named by an environment variable and
// removes the variable.
func openPipe(key, name string) (*os.File, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil, fmt.Errorf("%s not set: not started by the mkbox launcher", key)
	}
	os.Unsetenv(key)
	fd, err := strconv.Atoi(value)
	if err != nil || fd < 3 {
		return nil, fmt.Errorf("invalid %s descriptor %q", name, value)
	}
	return os.NewFile(uintptr(fd), name), nil
}

func reportFor(err error) *sandbox.Report {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Report()
	}
	return sandbox.NewReport("bootstrap", "", err)
}

// fail sends the report, falling back to stderr when the launcher is no
// longer listening.
func fail(w io.Writer, report *sandbox.Report) {
	if err := sandbox.WriteReport(w, report); err != nil {
		fmt.Fprintf(os.Stderr, "mkbox: %v\n", report)
	}
}
