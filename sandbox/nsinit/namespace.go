// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"log/slog"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mkbox/sandbox"
)

// Isolate finishes namespace setup inside the init. The namespaces
// themselves are created by the launcher's clone; this step makes the
// process die with its parent, checks that it is PID 1 and names the UTS
// namespace.
func Isolate(k Kernel, plan *sandbox.Plan, logger *slog.Logger) (*Namespaces, error) {
	if plan == nil {
		return nil, stepError("isolate", "", errTokenInvalid)
	}

	// The clone already carries Pdeathsig. Setting it again here keeps it
	// on the thread that will execve.
	if err := k.setPdeathsig(unix.SIGKILL); err != nil {
		return nil, stepError("prctl", "PR_SET_PDEATHSIG", err)
	}

	if pid := k.getpid(); pid != 1 {
		return nil, stepError("getpid", strconv.Itoa(pid), errNotInit)
	}

	if err := k.sethostname(sandbox.SandboxHostname); err != nil {
		return nil, stepError("sethostname", sandbox.SandboxHostname, err)
	}
	if err := k.setdomainname(sandbox.SandboxDomainname); err != nil {
		return nil, stepError("setdomainname", sandbox.SandboxDomainname, err)
	}

	// Cache sysctl before pivot_root.
	if err := k.lastCap(); err != nil {
		return nil, stepError("read", "/proc/sys/kernel/cap_last_cap", err)
	}

	logger.Debug("namespaces ready", "hostname", sandbox.SandboxHostname)
	return &Namespaces{token{plan: plan}}, nil
}
