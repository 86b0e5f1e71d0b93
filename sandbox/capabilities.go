// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Capabilities describes the host's support for unprivileged sandboxes.
type Capabilities struct {
	// UserNamespacesEnabled is false when a sysctl forbids unprivileged
	// user namespaces.
	UserNamespacesEnabled bool

	// MaxUserNamespaces is user.max_user_namespaces, or -1 if unknown.
	MaxUserNamespaces int

	// AppArmorRestricted is true when AppArmor blocks unprivileged user
	// namespaces for unconfined programs (Ubuntu 23.10 and later).
	AppArmorRestricted bool

	// SetgroupsControl is true if the kernel has /proc/<pid>/setgroups.
	// Kernels before 3.19 lack it and the bootstrap skips the deny write.
	SetgroupsControl bool
}

// DetectCapabilities checks the running host.
func DetectCapabilities() *Capabilities {
	return detectCapabilities("/proc")
}

func detectCapabilities(procRoot string) *Capabilities {
	caps := &Capabilities{
		UserNamespacesEnabled: true,
		MaxUserNamespaces:     -1,
	}

	// File not existing usually means userns is allowed.
	if value, ok := readProcValue(procRoot, "sys/kernel/unprivileged_userns_clone"); ok && value == "0" {
		caps.UserNamespacesEnabled = false
	}

	if value, ok := readProcValue(procRoot, "sys/user/max_user_namespaces"); ok {
		if limit, err := strconv.Atoi(value); err == nil {
			caps.MaxUserNamespaces = limit
			if limit == 0 {
				caps.UserNamespacesEnabled = false
			}
		}
	}

	if value, ok := readProcValue(procRoot, "sys/kernel/apparmor_restrict_unprivileged_userns"); ok && value == "1" {
		caps.AppArmorRestricted = true
	}

	if _, err := os.Stat(filepath.Join(procRoot, "self", "setgroups")); err == nil {
		caps.SetgroupsControl = true
	}

	return caps
}

func readProcValue(procRoot, name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(procRoot, name))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// CanRunSandbox returns true if nothing is known to block the clone.
func (c *Capabilities) CanRunSandbox() bool {
	return c.UserNamespacesEnabled && !c.AppArmorRestricted
}

// SkipReason returns a human-readable reason why sandboxing isn't available,
// or empty string if it is available.
func (c *Capabilities) SkipReason() string {
	if !c.UserNamespacesEnabled {
		if c.MaxUserNamespaces == 0 {
			return "user namespaces disabled (set user.max_user_namespaces above 0)"
		}
		return "unprivileged user namespaces not enabled (set kernel.unprivileged_userns_clone=1)"
	}
	if c.AppArmorRestricted {
		return "AppArmor restricts unprivileged user namespaces (set kernel.apparmor_restrict_unprivileged_userns=0 or add a profile for this binary)"
	}
	return ""
}
