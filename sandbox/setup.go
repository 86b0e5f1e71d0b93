// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/mkbox/lib/codec"
)

// InitName is the reexec name under which the init process registers.
const InitName = "mkbox-init"

// The launcher passes the setup and report pipes to the init as extra
// files. Their descriptor numbers travel in the environment and are
// removed before the target runs.
const (
	SetupFDEnv  = "MKBOX_SETUP_FD"
	ReportFDEnv = "MKBOX_REPORT_FD"

	setupFD  = 3
	reportFD = 4
)

// WritePlan sends a plan over the setup pipe.
func WritePlan(w io.Writer, plan *Plan) error {
	if err := codec.NewEncoder(w).Encode(plan); err != nil {
		return fmt.Errorf("sending plan: %w", err)
	}
	return nil
}

// ReadPlan receives a plan from the setup pipe.
func ReadPlan(r io.Reader) (*Plan, error) {
	var plan Plan
	if err := codec.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("receiving plan: %w", err)
	}
	return &plan, nil
}

// WriteReport sends a failure report over the report pipe. The report is
// encoded up front and written with a single write, which a pipe delivers
// whole.
func WriteReport(w io.Writer, report *Report) error {
	data, err := codec.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}
	return nil
}

// ReadReport waits for the init's verdict by reading the report pipe to
// its end. The pipe is closed on exec, so an empty pipe means the target
// is running (or the init died before it could say anything). Both return
// nil, nil; the exit status tells them apart.
func ReadReport(r io.Reader) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("receiving report: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var report Report
	if err := codec.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}
