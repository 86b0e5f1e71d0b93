// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/mkbox/sandbox"
)

var (
	errTokenSpent   = errors.New("bootstrap step already consumed this token")
	errTokenInvalid = errors.New("bootstrap token not issued by the previous step")
	errNotInit      = errors.New("must run as PID 1 of a new PID namespace")
)

// StepError is a failed bootstrap operation.
type StepError struct {
	// Op is the system call or step that failed.
	Op string
	// Arg is what the operation was applied to.
	Arg string
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s(%s): %v", e.Op, e.Arg, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Report converts the error for the report pipe.
func (e *StepError) Report() *sandbox.Report {
	return sandbox.NewReport(e.Op, e.Arg, e.Err)
}

func stepError(op, arg string, err error) *StepError {
	return &StepError{Op: op, Arg: arg, Err: err}
}

// token is the state carried from one bootstrap step to the next.
type token struct {
	plan  *sandbox.Plan
	spent bool
}

// spend marks the token used and returns its plan. step names the
// consuming step for the error.
func (t *token) spend(step string) (*sandbox.Plan, error) {
	if t.plan == nil {
		return nil, stepError(step, "", errTokenInvalid)
	}
	if t.spent {
		return nil, stepError(step, "", errTokenSpent)
	}
	t.spent = true
	return t.plan, nil
}

// Namespaces proves the process runs as PID 1 of the new namespaces with
// their names set. Returned by [Isolate].
type Namespaces struct{ token }

// Identity proves the id maps are written and the ids switched. Returned
// by [MapIdentity].
type Identity struct{ token }

// Filesystem proves the sandbox tree is assembled under the root. Returned
// by [Assemble].
type Filesystem struct{ token }

// SealedRoot proves the process is confined to the read-only root.
// Returned by [Seal].
type SealedRoot struct{ token }
