// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestInfoDirtySuffix(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "false"
	if info := Info(); !strings.Contains(info, "(abc1234,") {
		t.Errorf("clean build: got %q", info)
	}

	GitDirty = "true"
	if info := Info(); !strings.Contains(info, "(abc1234-dirty,") {
		t.Errorf("dirty build: got %q", info)
	}
}

func TestFprint(t *testing.T) {
	var buffer bytes.Buffer
	Fprint(&buffer, "mkbox")

	output := buffer.String()
	if !strings.HasPrefix(output, "mkbox "+Short()) {
		t.Errorf("output should start with binary and version, got %q", output)
	}
	if !strings.Contains(output, runtime.Version()) {
		t.Errorf("output should contain the Go version, got %q", output)
	}
}
