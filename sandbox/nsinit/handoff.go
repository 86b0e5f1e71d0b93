// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"log/slog"
	"strings"

	"github.com/bureau-foundation/mkbox/sandbox"
)

// Handoff enters the working directory, gives up every privilege and
// replaces the init with the target program. It only returns on failure.
//
// no_new_privs goes before the capability drop so that no setuid binary
// inside the sandbox can win any of them back.
func Handoff(k Kernel, root *SealedRoot, logger *slog.Logger) error {
	if root == nil {
		return stepError("handoff", "", errTokenInvalid)
	}
	plan, err := root.spend("handoff")
	if err != nil {
		return err
	}

	if plan.Dir != "" {
		if err := k.chdir(plan.Dir); err != nil {
			return stepError("chdir", plan.Dir, err)
		}
	}

	if err := k.setNoNewPrivs(); err != nil {
		return stepError("prctl", "PR_SET_NO_NEW_PRIVS", err)
	}
	if err := k.dropCapabilities(); err != nil {
		return stepError("capset", "all", err)
	}

	binary, args := plan.Target()
	logger.Debug("exec", "binary", binary, "args", args)
	if err := k.exec(binary, args, targetEnviron(k.environ())); err != nil {
		return stepError("execve", binary, err)
	}
	return nil
}

// targetEnviron removes the setup pipe variables from the environment
// passed to the target.
func targetEnviron(environ []string) []string {
	result := make([]string, 0, len(environ))
	for _, entry := range environ {
		if strings.HasPrefix(entry, sandbox.SetupFDEnv+"=") || strings.HasPrefix(entry, sandbox.ReportFDEnv+"=") {
			continue
		}
		result = append(result, entry)
	}
	return result
}
