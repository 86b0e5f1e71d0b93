// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind identifies the filesystem operation an [Action] performs.
type ActionKind string

// ActionKind constants. The string values are the profile "type" names.
const (
	ActionBind  ActionKind = "bind"  // Bind-mount Source onto Dest.
	ActionTmpfs ActionKind = "tmpfs" // Mount a size-limited tmpfs on Dest.
	ActionMkdir ActionKind = "dir"   // Create Dest and its parents.
)

// Default tmpfs quota. Both values are passed verbatim as tmpfs mount
// options.
const (
	DefaultTmpfsSize   = "16m"
	DefaultTmpfsInodes = "16k"
)

// TmpfsSource is the device name given to sandbox tmpfs mounts. It shows up
// in /proc/mounts inside the sandbox.
const TmpfsSource = "sandbox-tmp"

// quotaPattern matches a tmpfs size or inode count: a number with an
// optional unit suffix. Commas would let a value inject extra options.
var quotaPattern = regexp.MustCompile(`^[0-9]+[kKmMgG%]?$`)

// Action is one filesystem operation, applied in caller order relative to
// the sandbox root.
type Action struct {
	Kind ActionKind `cbor:"kind"`

	// Source is the absolute host path for bind mounts.
	Source string `cbor:"source,omitempty"`

	// Dest is relative to the sandbox root and never escapes it.
	Dest string `cbor:"dest"`

	// Size and Inodes override the tmpfs quota. Empty means the default.
	Size   string `cbor:"size,omitempty"`
	Inodes string `cbor:"inodes,omitempty"`
}

// TmpfsOptions returns the mount data string for a tmpfs action.
func (a Action) TmpfsOptions() string {
	size := a.Size
	if size == "" {
		size = DefaultTmpfsSize
	}
	inodes := a.Inodes
	if inodes == "" {
		inodes = DefaultTmpfsInodes
	}
	return fmt.Sprintf("size=%s,nr_inodes=%s,mode=755", size, inodes)
}

// String renders the action the way the flag that produced it reads.
func (a Action) String() string {
	switch a.Kind {
	case ActionBind:
		return fmt.Sprintf("bind %s=%s", a.Source, a.Dest)
	case ActionTmpfs:
		return fmt.Sprintf("tmpfs %s (%s)", a.Dest, a.TmpfsOptions())
	case ActionMkdir:
		return fmt.Sprintf("dir %s", a.Dest)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Dest)
	}
}

// validate returns the problems with a single action.
func (a Action) validate() []string {
	var problems []string
	switch a.Kind {
	case ActionBind:
		if a.Source == "" {
			problems = append(problems, "source is required for bind mounts")
		} else if !filepath.IsAbs(a.Source) {
			problems = append(problems, fmt.Sprintf("source %q must be an absolute path", a.Source))
		}
	case ActionTmpfs:
		if a.Size != "" && !quotaPattern.MatchString(a.Size) {
			problems = append(problems, fmt.Sprintf("invalid tmpfs size %q", a.Size))
		}
		if a.Inodes != "" && !quotaPattern.MatchString(a.Inodes) {
			problems = append(problems, fmt.Sprintf("invalid tmpfs inode count %q", a.Inodes))
		}
	case ActionMkdir:
	default:
		problems = append(problems, fmt.Sprintf("unknown action type %q", a.Kind))
	}
	if a.Kind != ActionBind && a.Source != "" {
		problems = append(problems, "source is only valid for bind mounts")
	}
	if a.Dest == "" {
		problems = append(problems, "dest is required")
	} else if !filepath.IsLocal(a.Dest) {
		problems = append(problems, fmt.Sprintf("dest %q must be a relative path inside the sandbox root", a.Dest))
	} else if filepath.Clean(a.Dest) == "." {
		problems = append(problems, fmt.Sprintf("dest %q is the sandbox root itself", a.Dest))
	}
	return problems
}

// Plan is the complete description of one sandbox. It is built once from
// flags and profiles, validated, sent to the init process and consumed by
// the bootstrap sequence.
type Plan struct {
	// Root is the absolute host directory that becomes "/".
	Root string `cbor:"root"`

	Actions []Action `cbor:"actions,omitempty"`

	// UID and GID are the identities inside the user namespace. Nil means
	// no mapping is written for that id.
	UID *int `cbor:"uid,omitempty"`
	GID *int `cbor:"gid,omitempty"`

	// HostUID and HostGID are the launcher's ids, the outer side of the
	// mapping. The init cannot read them itself: inside an unmapped user
	// namespace every id reads as the overflow id.
	HostUID int `cbor:"host_uid"`
	HostGID int `cbor:"host_gid"`

	// Dir is the working directory inside the sandbox.
	Dir string `cbor:"dir,omitempty"`

	// Binary overrides Args[0] as the program to execute.
	Binary string   `cbor:"binary,omitempty"`
	Args   []string `cbor:"args,omitempty"`

	Quiet bool `cbor:"quiet,omitempty"`
}

// SetRoot sets the sandbox root. The root may be set only once.
func (p *Plan) SetRoot(path string) error {
	if p.Root != "" {
		return Configf("sandbox root given twice (%q and %q)", p.Root, path)
	}
	if path == "" {
		return Configf("sandbox root must not be empty")
	}
	p.Root = path
	return nil
}

// AddBind parses a "src=dst" rule and appends it. The split happens at the
// first '=', so destinations may contain '='.
func (p *Plan) AddBind(rule string) error {
	source, dest, found := strings.Cut(rule, "=")
	if !found {
		return Configf("bind rule %q: expected <src>=<dst>", rule)
	}
	p.Actions = append(p.Actions, Action{Kind: ActionBind, Source: source, Dest: dest})
	return nil
}

// AddTmpfs appends a tmpfs mount with the default quota.
func (p *Plan) AddTmpfs(dest string) {
	p.Actions = append(p.Actions, Action{Kind: ActionTmpfs, Dest: dest})
}

// AddMkdir appends a directory rule.
func (p *Plan) AddMkdir(dest string) {
	p.Actions = append(p.Actions, Action{Kind: ActionMkdir, Dest: dest})
}

// SetUID parses and records the inner uid. It may be given only once.
func (p *Plan) SetUID(value string) error {
	if p.UID != nil {
		return Configf("uid given twice")
	}
	id, err := parseID(value)
	if err != nil {
		return Configf("uid: %v", err)
	}
	p.UID = &id
	return nil
}

// SetGID parses and records the inner gid. It may be given only once.
func (p *Plan) SetGID(value string) error {
	if p.GID != nil {
		return Configf("gid given twice")
	}
	id, err := parseID(value)
	if err != nil {
		return Configf("gid: %v", err)
	}
	p.GID = &id
	return nil
}

// parseID accepts a decimal id in the range the kernel can map. The
// all-ones value is reserved as "no id".
func parseID(value string) (int, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	if id < 0 || id >= math.MaxUint32 {
		return 0, fmt.Errorf("%d is out of range", id)
	}
	return int(id), nil
}

// Target returns the program to execute and its argument vector. With no
// arguments the binary runs with itself as argv[0].
func (p *Plan) Target() (string, []string) {
	binary := p.Binary
	if binary == "" && len(p.Args) > 0 {
		binary = p.Args[0]
	}
	args := p.Args
	if len(args) == 0 && binary != "" {
		args = []string{binary}
	}
	return binary, args
}

// Validate checks the plan without touching the system. It reports every
// problem at once as a [*ConfigError].
func (p *Plan) Validate() error {
	var problems []string

	switch {
	case p.Root == "":
		problems = append(problems, "sandbox root (-s) is required")
	case !filepath.IsAbs(p.Root):
		problems = append(problems, fmt.Sprintf("sandbox root %q must be an absolute path", p.Root))
	}

	for i, action := range p.Actions {
		for _, problem := range action.validate() {
			problems = append(problems, fmt.Sprintf("actions[%d] (%s): %s", i, action.Kind, problem))
		}
	}

	if binary, _ := p.Target(); binary == "" {
		problems = append(problems, "no program to run (give a command or -B)")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
