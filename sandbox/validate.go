// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ValidationResult holds the result of a validation check.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Validator performs pre-flight validation for sandbox execution. It only
// reads the host; nothing it does needs privileges.
type Validator struct {
	results []ValidationResult
	errors  int
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		results: make([]ValidationResult, 0),
	}
}

// Results returns all validation results.
func (v *Validator) Results() []ValidationResult {
	return v.results
}

// HasErrors returns true if any validation failed.
func (v *Validator) HasErrors() bool {
	return v.errors > 0
}

// pass records a successful validation.
func (v *Validator) pass(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
	})
}

// warn records a warning (not a failure).
func (v *Validator) warn(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
		Warning: true,
	})
}

// fail records a validation failure.
func (v *Validator) fail(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  false,
		Message: message,
	})
	v.errors++
}

// ValidateAll runs all validation checks for a plan.
func (v *Validator) ValidateAll(plan *Plan, caps *Capabilities) {
	v.ValidateUserNamespaces(caps)
	v.ValidatePlan(plan)
	v.ValidateRoot(plan.Root)
	v.ValidateActions(plan)
	v.ValidateTarget(plan)
}

// ValidateUserNamespaces checks that the host allows unprivileged user
// namespaces.
func (v *Validator) ValidateUserNamespaces(caps *Capabilities) {
	if reason := caps.SkipReason(); reason != "" {
		v.fail("userns", reason)
		return
	}
	if caps.MaxUserNamespaces > 0 {
		v.pass("userns", fmt.Sprintf("unprivileged user namespaces enabled (limit %d)", caps.MaxUserNamespaces))
		return
	}
	v.pass("userns", "unprivileged user namespaces enabled")
}

// ValidatePlan records every structural problem of the plan.
func (v *Validator) ValidatePlan(plan *Plan) {
	err := plan.Validate()
	if err == nil {
		v.pass("plan", fmt.Sprintf("%d action(s) valid", len(plan.Actions)))
		return
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		for _, problem := range configErr.Problems {
			v.fail("plan", problem)
		}
		return
	}
	v.fail("plan", err.Error())
}

// ValidateRoot checks that the sandbox root is an existing directory.
func (v *Validator) ValidateRoot(root string) {
	if root == "" || !filepath.IsAbs(root) {
		// Already reported by ValidatePlan.
		return
	}
	info, err := os.Stat(root)
	if err != nil {
		v.fail("root", fmt.Sprintf("cannot access %s: %v", root, err))
		return
	}
	if !info.IsDir() {
		v.fail("root", fmt.Sprintf("%s is not a directory", root))
		return
	}
	v.pass("root", root)
}

// ValidateActions checks bind sources and reports which destinations the
// bootstrap will have to create.
func (v *Validator) ValidateActions(plan *Plan) {
	for _, action := range plan.Actions {
		if action.Kind == ActionBind {
			v.validateBindSource(action)
		}
		if plan.Root == "" || !filepath.IsLocal(action.Dest) {
			continue
		}
		name := fmt.Sprintf("%s %s", action.Kind, action.Dest)
		hostPath := filepath.Join(plan.Root, action.Dest)
		if _, err := os.Lstat(hostPath); err == nil {
			v.pass(name, "destination exists")
		} else if errors.Is(err, os.ErrNotExist) {
			v.warn(name, fmt.Sprintf("%s will be created", hostPath))
		} else {
			v.fail(name, fmt.Sprintf("cannot access %s: %v", hostPath, err))
		}
	}
}

func (v *Validator) validateBindSource(action Action) {
	if !filepath.IsAbs(action.Source) {
		return
	}
	name := fmt.Sprintf("source %s", action.Source)
	info, err := os.Stat(action.Source)
	if err != nil {
		v.fail(name, fmt.Sprintf("cannot access: %v", err))
		return
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	v.pass(name, kind)
}

// ValidateTarget looks for the program the sandbox will execute. The path
// is resolved after the root transition and the root itself is noexec, so
// the program has to live under a bind mount. No PATH search happens.
func (v *Validator) ValidateTarget(plan *Plan) {
	binary, _ := plan.Target()
	if binary == "" {
		return
	}
	if !filepath.IsAbs(binary) {
		v.warn("target", fmt.Sprintf("%s is relative; it resolves against the working directory inside the sandbox", binary))
		return
	}
	inner := strings.TrimPrefix(binary, "/")
	for _, action := range plan.Actions {
		if action.Kind != ActionBind {
			continue
		}
		if inner == action.Dest {
			v.pass("target", fmt.Sprintf("%s (bound from %s)", binary, action.Source))
			return
		}
		if rest, ok := strings.CutPrefix(inner, action.Dest+"/"); ok {
			if _, err := os.Stat(filepath.Join(action.Source, rest)); err == nil {
				v.pass("target", fmt.Sprintf("%s (bound from %s)", binary, action.Source))
				return
			}
		}
	}
	if plan.Root != "" {
		if _, err := os.Stat(filepath.Join(plan.Root, binary)); err == nil {
			v.warn("target", fmt.Sprintf("%s is on the root, which is mounted noexec; bind-mount it instead", binary))
			return
		}
	}
	v.warn("target", fmt.Sprintf("%s not found under any bind mount", binary))
}

// PrintResults writes validation results to a writer.
func (v *Validator) PrintResults(w io.Writer) {
	for _, r := range v.results {
		var prefix string
		if r.Passed {
			if r.Warning {
				prefix = "⚠"
			} else {
				prefix = "✓"
			}
		} else {
			prefix = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", prefix, r.Name, r.Message)
	}

	fmt.Fprintln(w)
	if v.HasErrors() {
		fmt.Fprintf(w, "Validation failed with %d error(s)\n", v.errors)
	} else {
		fmt.Fprintln(w, "Ready to run sandbox")
	}
}

// PrintPlan writes a human-readable rendition of the plan.
func PrintPlan(w io.Writer, plan *Plan) {
	fmt.Fprintf(w, "root: %s\n", plan.Root)
	for i, action := range plan.Actions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, action)
	}
	if plan.UID != nil {
		fmt.Fprintf(w, "uid: %d -> %d\n", plan.HostUID, *plan.UID)
	}
	if plan.GID != nil {
		fmt.Fprintf(w, "gid: %d -> %d\n", plan.HostGID, *plan.GID)
	}
	if plan.Dir != "" {
		fmt.Fprintf(w, "dir: %s\n", plan.Dir)
	}
	binary, args := plan.Target()
	fmt.Fprintf(w, "exec: %s %q\n", binary, args)
}
