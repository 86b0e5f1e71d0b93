// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Identity values the bootstrap gives every sandbox.
const (
	SandboxHostname   = "localhost"
	SandboxDomainname = "localdomain"
)

// OldRootPath is where the host root is parked during pivot_root. It is
// detached and removed before the target runs.
const OldRootPath = "/.oldroot"

// ProbeOptions carries what the probe expects to find.
type ProbeOptions struct {
	// UID and GID are checked when set.
	UID *int
	GID *int
}

// Probe is one isolation property checked from inside a sandbox.
// Run returns nil when the property holds and an error describing the
// breach otherwise.
type Probe struct {
	Name        string
	Description string
	Category    string // "filesystem", "identity", "privilege", "network"
	Severity    string // "critical", "high", "medium"
	Run         func(ctx context.Context, options ProbeOptions) error
}

// ProbeResult holds the result of running a probe.
type ProbeResult struct {
	Probe  *Probe
	Passed bool
	Error  string
}

// Probes contains every isolation check.
var Probes = []Probe{
	{
		Name:        "root-readonly",
		Description: "Attempt to create a file in /",
		Category:    "filesystem",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			name := fmt.Sprintf("/.mkbox-probe-%d", os.Getpid())
			file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err == nil {
				file.Close()
				os.Remove(name)
				return fmt.Errorf("created %s", name)
			}
			if !errors.Is(err, unix.EROFS) {
				return fmt.Errorf("expected EROFS, got %v", err)
			}
			return nil
		},
	},
	{
		Name:        "root-remount",
		Description: "Attempt to remount / read-write",
		Category:    "privilege",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			err := unix.Mount("/", "/", "", unix.MS_REMOUNT|unix.MS_BIND, "")
			if err == nil {
				return fmt.Errorf("remounted / read-write")
			}
			return nil
		},
	},
	{
		Name:        "old-root",
		Description: "Look for the detached host root",
		Category:    "filesystem",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			if _, err := os.Lstat(OldRootPath); !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s still present (%v)", OldRootPath, err)
			}
			return nil
		},
	},
	{
		Name:        "hostname",
		Description: "Check the UTS namespace names",
		Category:    "identity",
		Severity:    "medium",
		Run: func(ctx context.Context, options ProbeOptions) error {
			var uts unix.Utsname
			if err := unix.Uname(&uts); err != nil {
				return fmt.Errorf("uname: %w", err)
			}
			if name := unix.ByteSliceToString(uts.Nodename[:]); name != SandboxHostname {
				return fmt.Errorf("hostname is %q", name)
			}
			if name := unix.ByteSliceToString(uts.Domainname[:]); name != SandboxDomainname {
				return fmt.Errorf("domainname is %q", name)
			}
			return nil
		},
	},
	{
		Name:        "pid-namespace",
		Description: "Check for a private PID namespace",
		Category:    "identity",
		Severity:    "high",
		Run: func(ctx context.Context, options ProbeOptions) error {
			if os.Getpid() != 1 {
				return fmt.Errorf("pid is %d, expected 1", os.Getpid())
			}
			return nil
		},
	},
	{
		Name:        "identity",
		Description: "Check the mapped uid and gid",
		Category:    "identity",
		Severity:    "high",
		Run: func(ctx context.Context, options ProbeOptions) error {
			if options.UID != nil {
				if uid, euid := os.Getuid(), os.Geteuid(); uid != *options.UID || euid != *options.UID {
					return fmt.Errorf("uid %d euid %d, expected %d", uid, euid, *options.UID)
				}
			}
			if options.GID != nil {
				if gid, egid := os.Getgid(), os.Getegid(); gid != *options.GID || egid != *options.GID {
					return fmt.Errorf("gid %d egid %d, expected %d", gid, egid, *options.GID)
				}
			}
			return nil
		},
	},
	{
		Name:        "capabilities",
		Description: "Check that every capability set is empty",
		Category:    "privilege",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			header := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
			var data [2]unix.CapUserData
			if err := unix.Capget(&header, &data[0]); err != nil {
				return fmt.Errorf("capget: %w", err)
			}
			for _, set := range data {
				if set.Effective != 0 || set.Permitted != 0 || set.Inheritable != 0 {
					return fmt.Errorf("capabilities remain: %+v", data)
				}
			}
			// No /proc inside the sandbox, so walk the bounding set until
			// the kernel reports an unknown capability.
			for capability := 0; capability < 64; capability++ {
				inSet, err := unix.PrctlRetInt(unix.PR_CAPBSET_READ, uintptr(capability), 0, 0, 0)
				if errors.Is(err, unix.EINVAL) {
					break
				}
				if err != nil {
					return fmt.Errorf("reading bounding set: %w", err)
				}
				if inSet == 1 {
					return fmt.Errorf("capability %d still in the bounding set", capability)
				}
			}
			return nil
		},
	},
	{
		Name:        "no-new-privs",
		Description: "Check that setuid binaries cannot gain privileges",
		Category:    "privilege",
		Severity:    "high",
		Run: func(ctx context.Context, options ProbeOptions) error {
			value, err := unix.PrctlRetInt(unix.PR_GET_NO_NEW_PRIVS, 0, 0, 0, 0)
			if err != nil {
				return fmt.Errorf("prctl: %w", err)
			}
			if value != 1 {
				return fmt.Errorf("no_new_privs is not set")
			}
			return nil
		},
	},
	{
		Name:        "network-interfaces",
		Description: "Check that only loopback exists",
		Category:    "network",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			interfaces, err := net.Interfaces()
			if err != nil {
				return fmt.Errorf("listing interfaces: %w", err)
			}
			for _, iface := range interfaces {
				if iface.Flags&net.FlagLoopback == 0 {
					return fmt.Errorf("interface %s is visible", iface.Name)
				}
			}
			return nil
		},
	},
	{
		Name:        "network-external",
		Description: "Attempt to connect to external host",
		Category:    "network",
		Severity:    "critical",
		Run: func(ctx context.Context, options ProbeOptions) error {
			dialer := net.Dialer{Timeout: 5 * time.Second}
			conn, err := dialer.DialContext(ctx, "tcp", "1.1.1.1:80")
			if err != nil {
				return nil
			}
			conn.Close()
			return fmt.Errorf("external network connection succeeded to 1.1.1.1:80")
		},
	},
}

// ProbeRunner runs probes inside a sandbox.
type ProbeRunner struct {
	probes  []Probe
	options ProbeOptions
	results []ProbeResult
}

// NewProbeRunner creates a new runner with all probes.
func NewProbeRunner(options ProbeOptions) *ProbeRunner {
	return &ProbeRunner{
		probes:  Probes,
		options: options,
		results: make([]ProbeResult, 0),
	}
}

// RunAll runs all probes and returns results.
func (r *ProbeRunner) RunAll(ctx context.Context) []ProbeResult {
	return r.RunCategory(ctx, "")
}

// RunCategory runs probes in a specific category. An empty category runs
// every probe.
func (r *ProbeRunner) RunCategory(ctx context.Context, category string) []ProbeResult {
	r.results = make([]ProbeResult, 0, len(r.probes))

	for i := range r.probes {
		probe := &r.probes[i]
		if category != "" && probe.Category != category {
			continue
		}

		result := ProbeResult{
			Probe:  probe,
			Passed: true,
		}

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := probe.Run(probeCtx, r.options)
		cancel()

		if err != nil {
			result.Passed = false
			result.Error = err.Error()
		}

		r.results = append(r.results, result)
	}

	return r.results
}

// Summary returns a summary of probe results.
func (r *ProbeRunner) Summary() (passed, failed int) {
	for _, result := range r.results {
		if result.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}

// PrintResults writes probe results to a writer.
func (r *ProbeRunner) PrintResults(w io.Writer) {
	for _, result := range r.results {
		status := "[PASS]"
		if !result.Passed {
			status = "[FAIL]"
		}

		fmt.Fprintf(w, "%s %s: %s\n", status, result.Probe.Name, result.Probe.Description)
		if !result.Passed {
			fmt.Fprintf(w, "       %s\n", result.Error)
		}
	}

	passed, failed := r.Summary()
	fmt.Fprintf(w, "\n%d/%d probes passed", passed, passed+failed)
	if failed == 0 {
		fmt.Fprintf(w, " - sandbox isolation verified\n")
	} else {
		fmt.Fprintf(w, " - %d isolation breaches detected!\n", failed)
	}
}

// HasFailures returns true if any probe failed.
func (r *ProbeRunner) HasFailures() bool {
	_, failed := r.Summary()
	return failed > 0
}
