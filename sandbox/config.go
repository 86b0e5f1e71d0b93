// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Profile is a sandbox description stored in a file. It carries the same
// information as the command-line flags, minus the target arguments.
type Profile struct {
	Root   string  `yaml:"root" json:"root"`
	UID    *int    `yaml:"uid,omitempty" json:"uid,omitempty"`
	GID    *int    `yaml:"gid,omitempty" json:"gid,omitempty"`
	Dir    string  `yaml:"dir,omitempty" json:"dir,omitempty"`
	Binary string  `yaml:"binary,omitempty" json:"binary,omitempty"`
	Mounts []Mount `yaml:"mounts,omitempty" json:"mounts,omitempty"`
}

// Mount is one filesystem entry of a profile.
type Mount struct {
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	Dest   string `yaml:"dest" json:"dest"`
	Size   string `yaml:"size,omitempty" json:"size,omitempty"`
	Inodes string `yaml:"inodes,omitempty" json:"inodes,omitempty"`
}

// MountType constants for the Type field.
const (
	MountTypeBind  = ""      // Default: bind mount
	MountTypeTmpfs = "tmpfs" // tmpfs mount
	MountTypeDir   = "dir"   // Directory to create
)

// action converts a profile mount into a plan action.
func (m Mount) action() (Action, error) {
	action := Action{Source: m.Source, Dest: m.Dest, Size: m.Size, Inodes: m.Inodes}
	switch m.Type {
	case MountTypeBind, string(ActionBind):
		action.Kind = ActionBind
	case MountTypeTmpfs:
		action.Kind = ActionTmpfs
	case MountTypeDir:
		action.Kind = ActionMkdir
	default:
		return Action{}, fmt.Errorf("unknown mount type %q (must be bind, tmpfs or dir)", m.Type)
	}
	return action, nil
}

// Plan expands variables in the profile and converts it to a Plan. The
// result is not validated: command-line flags may still complete it.
func (p *Profile) Plan(vars Variables) (*Plan, error) {
	plan := &Plan{
		Root:   vars.Expand(p.Root),
		UID:    p.UID,
		GID:    p.GID,
		Dir:    vars.Expand(p.Dir),
		Binary: vars.Expand(p.Binary),
	}

	var problems []string
	for i, m := range p.Mounts {
		m.Source = vars.Expand(m.Source)
		m.Dest = vars.Expand(m.Dest)
		action, err := m.action()
		if err != nil {
			problems = append(problems, fmt.Sprintf("mounts[%d]: %v", i, err))
			continue
		}
		plan.Actions = append(plan.Actions, action)
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return plan, nil
}

// MergePlans combines a profile plan with a command-line plan. Scalar
// fields set in override win. Actions from base come first, followed by
// the actions of override, so command-line rules see the profile's
// directories.
func MergePlans(base, override *Plan) *Plan {
	if base == nil {
		return override
	}
	merged := *base
	merged.Actions = append(append([]Action(nil), base.Actions...), override.Actions...)
	if override.Root != "" {
		merged.Root = override.Root
	}
	if override.UID != nil {
		merged.UID = override.UID
	}
	if override.GID != nil {
		merged.GID = override.GID
	}
	if override.Dir != "" {
		merged.Dir = override.Dir
	}
	if override.Binary != "" {
		merged.Binary = override.Binary
	}
	merged.Args = override.Args
	merged.Quiet = base.Quiet || override.Quiet
	return &merged
}

// variablePattern matches ${VAR} references.
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Variables holds the variable values for expansion in profiles.
type Variables map[string]string

// Expand expands variables in a string using ${VAR} syntax.
// Falls back to environment variables if not in the Variables map.
func (v Variables) Expand(s string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]

		if val, ok := v[varName]; ok {
			return val
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}

		// Unknown references stay visible so validation can point at them.
		return match
	})
}

// DefaultVariables returns the variables every profile can reference
// without setting them in the environment.
func DefaultVariables() Variables {
	vars := Variables{
		"UID": strconv.Itoa(os.Getuid()),
		"GID": strconv.Itoa(os.Getgid()),
	}
	if home, err := os.UserHomeDir(); err == nil {
		vars["HOME"] = home
	}
	return vars
}
