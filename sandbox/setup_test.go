// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"slices"
	"testing"
)

func TestPlanRoundTrip(t *testing.T) {
	t.Parallel()

	uid, gid := 0, 100
	plan := &Plan{
		Root: "/srv/box",
		Actions: []Action{
			{Kind: ActionBind, Source: "/usr", Dest: "usr"},
			{Kind: ActionTmpfs, Dest: "tmp", Size: "1g"},
			{Kind: ActionMkdir, Dest: "tmp/work"},
		},
		UID:     &uid,
		GID:     &gid,
		HostUID: 1000,
		HostGID: 1000,
		Dir:     "/tmp/work",
		Args:    []string{"/usr/bin/id", "-u"},
		Quiet:   true,
	}

	var buffer bytes.Buffer
	if err := WritePlan(&buffer, plan); err != nil {
		t.Fatalf("WritePlan: %v", err)
	}
	received, err := ReadPlan(&buffer)
	if err != nil {
		t.Fatalf("ReadPlan: %v", err)
	}

	if received.Root != plan.Root || received.Dir != plan.Dir || !received.Quiet {
		t.Errorf("scalars = %+v", received)
	}
	if received.HostUID != 1000 || received.HostGID != 1000 {
		t.Errorf("host ids = %d/%d", received.HostUID, received.HostGID)
	}
	if received.UID == nil || *received.UID != 0 || received.GID == nil || *received.GID != 100 {
		t.Errorf("ids = %v/%v, want 0/100", received.UID, received.GID)
	}
	if !slices.Equal(received.Actions, plan.Actions) {
		t.Errorf("Actions = %+v, want %+v", received.Actions, plan.Actions)
	}
	if !slices.Equal(received.Args, plan.Args) {
		t.Errorf("Args = %q, want %q", received.Args, plan.Args)
	}
}

func TestPlanRoundTripKeepsUnsetIDs(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	if err := WritePlan(&buffer, &Plan{Root: "/srv/box", Args: []string{"/bin/true"}}); err != nil {
		t.Fatal(err)
	}
	received, err := ReadPlan(&buffer)
	if err != nil {
		t.Fatal(err)
	}
	// An unset id means no mapping, which differs from mapping to 0.
	if received.UID != nil || received.GID != nil {
		t.Errorf("ids = %v/%v, want nil/nil", received.UID, received.GID)
	}
}

func TestReadPlanRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ReadPlan(bytes.NewReader(nil)); err == nil {
		t.Error("empty setup pipe should fail")
	}
	if _, err := ReadPlan(bytes.NewReader([]byte{0xa1})); err == nil {
		t.Error("truncated plan should fail")
	}
}

func TestReportRoundTrip(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	sent := &Report{Op: "mount", Arg: "usr", Errno: 13}
	if err := WriteReport(&buffer, sent); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	received, err := ReadReport(&buffer)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if received == nil || *received != *sent {
		t.Errorf("received %+v, want %+v", received, sent)
	}
}

func TestReadReportEOF(t *testing.T) {
	t.Parallel()

	report, err := ReadReport(bytes.NewReader(nil))
	if report != nil || err != nil {
		t.Errorf("closed pipe = %v, %v, want nil, nil", report, err)
	}

	if _, err := ReadReport(bytes.NewReader([]byte{0xa1})); err == nil {
		t.Error("truncated report should fail")
	}
}
