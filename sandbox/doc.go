// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox builds minimal process sandboxes from Linux namespaces.
//
// The central type is [Plan], the ordered list of actions that describes a
// sandbox: the root directory, bind mounts, tmpfs mounts, directories to
// create, the identity to assume and the target program. A Plan is pure
// data. It is validated ([Plan.Validate]) before any side effect, so
// configuration errors never leave a half-built sandbox behind.
//
// Plans come from command-line flags and from profile files ([Profile],
// [LoadProfile]). Profiles are YAML or JSONC documents whose string values
// undergo ${VAR} expansion ([Variables].Expand) before use.
//
// [Launcher] runs a Plan. The Go runtime is multi-threaded, and the kernel
// refuses to move a multi-threaded process into a new user namespace, so the
// launcher re-executes its own binary through github.com/moby/sys/reexec with
// all six namespace flags on the clone. The re-executed copy (package
// sandbox/nsinit) is PID 1 of the new PID namespace. It receives the Plan
// over a setup pipe, performs the bootstrap sequence and replaces itself with
// the target. When a bootstrap step fails the init writes a [Report] to the
// report pipe; the launcher turns it into an error carrying the failing
// operation and the raw errno.
//
// [Validator] performs pre-flight checks for dry runs (user namespace
// support, root and mount sources). [Capabilities] probes the host for user
// namespace restrictions and explains clone failures. [ProbeRunner] runs
// inside a finished sandbox and confirms its isolation properties.
package sandbox
