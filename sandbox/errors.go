// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Category classifies a sandbox failure for exit codes and hints.
type Category string

const (
	// CategoryConfig covers flag and profile errors. They are detected
	// before any namespace is created.
	CategoryConfig Category = "config"

	// CategoryPrivilege covers EPERM and EACCES from the kernel: the host
	// forbids something the bootstrap needs.
	CategoryPrivilege Category = "privilege"

	// CategoryResource covers every other errno: missing paths, busy
	// mounts, exhausted quotas.
	CategoryResource Category = "resource"
)

// Classify maps an error to its category. Errors that carry no errno are
// resource failures.
func Classify(err error) Category {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return CategoryConfig
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EPERM || errno == syscall.EACCES) {
		return CategoryPrivilege
	}
	return CategoryResource
}

// ConfigError is an invalid flag, profile or plan. It lists every problem
// found.
type ConfigError struct {
	Problems []string
}

// Configf returns a ConfigError with a single formatted problem.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Problems: []string{fmt.Sprintf(format, args...)}}
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration:\n  %s", strings.Join(e.Problems, "\n  "))
}

// Report describes the bootstrap step that failed inside the init process.
// It travels from the init to the launcher over the report pipe.
type Report struct {
	// Op is the system call or step name ("mount", "pivot_root").
	Op string `cbor:"op"`

	// Arg is the path or value the operation was applied to.
	Arg string `cbor:"arg,omitempty"`

	// Errno is the raw kernel error number, zero if the failure did not
	// come from a system call.
	Errno int `cbor:"errno,omitempty"`

	// Message describes failures that carry no errno.
	Message string `cbor:"message,omitempty"`
}

// NewReport builds a Report for a failed operation, extracting the errno
// from err when there is one.
func NewReport(op, arg string, err error) *Report {
	report := &Report{Op: op, Arg: arg}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		report.Errno = int(errno)
	} else if err != nil {
		report.Message = err.Error()
	}
	return report
}

func (r *Report) Error() string {
	if r.Errno != 0 {
		return fmt.Sprintf("%s(%s): %s (errno %d)", r.Op, r.Arg, syscall.Errno(r.Errno).Error(), r.Errno)
	}
	if r.Arg != "" {
		return fmt.Sprintf("%s(%s): %s", r.Op, r.Arg, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Op, r.Message)
}

// Unwrap exposes the errno so callers can use errors.Is.
func (r *Report) Unwrap() error {
	if r.Errno == 0 {
		return nil
	}
	return syscall.Errno(r.Errno)
}

// ExitError represents a non-zero exit from the sandboxed command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
