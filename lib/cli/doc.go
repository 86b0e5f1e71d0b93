// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the small pieces of command-line plumbing shared by
// the mkbox binaries.
package cli
