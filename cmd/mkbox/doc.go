// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Mkbox runs a program in a minimal sandbox built from Linux namespaces:
// a read-only root assembled from bind mounts, a private PID, IPC, UTS and
// network view, a remapped identity and no capabilities.
//
// Usage:
//
//	mkbox -s <root> [-b src=dst]... [-t dst]... [-D dst]... [-u uid] [-g gid]
//	      [-d dir] [-B binary] [-q] [-c profile] [-n] <command> [args...]
//
// Rules apply in command-line order relative to the sandbox root. The
// first argument that is not a flag starts the command. A failure of
// mkbox itself exits 1 with the failing operation on stderr; otherwise
// the command's exit status is passed through.
package main
