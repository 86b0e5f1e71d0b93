// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "mkbox: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized. Every failure of mkbox itself shares this status; the
// message says what went wrong.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "mkbox: %v\n", err)
	os.Exit(1)
}

// Exit terminates the process with code without printing anything. The
// launcher uses it to pass the sandboxed program's exit status through.
func Exit(code int) {
	os.Exit(code)
}
