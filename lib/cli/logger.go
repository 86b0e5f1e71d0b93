// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the structured logger for mkbox. When the output
// file is a terminal it uses slog.TextHandler for human-readable
// output. When it is piped or redirected (supervisors, CI, tests) it
// uses slog.JSONHandler so the records stay machine-parseable.
//
// Quiet raises the level to Warn, which hides the per-step progress the
// sandbox init reports at Info.
//
//	logger := cli.NewLogger(os.Stderr, quiet).With("root", plan.Root)
func NewLogger(output *os.File, quiet bool) *slog.Logger {
	return slog.New(NewHandler(output, Level(quiet)))
}

// NewHandler returns the handler NewLogger would use for output.
func NewHandler(output *os.File, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(output.Fd())) {
		return slog.NewTextHandler(output, options)
	}
	return slog.NewJSONHandler(output, options)
}

// Level maps the -q flag onto a slog level.
func Level(quiet bool) slog.Level {
	if quiet {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
