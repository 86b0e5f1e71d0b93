// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the mkbox
// binaries. These functions centralize the raw I/O that happens before
// the structured logger exists or after the last error has been
// decided:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit with a specific status once main() has decided on it.
package process
