// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mkbox/sandbox"
)

// Modes for created mount points.
const (
	dirMode  fs.FileMode = 0o755
	fileMode fs.FileMode = 0o666
)

// Mount flags of the assembly phase.
const (
	rootBindFlags = unix.MS_BIND | unix.MS_REC | unix.MS_NOSUID
	dirBindFlags  = unix.MS_BIND | unix.MS_REC
	fileBindFlags = unix.MS_BIND
	tmpfsFlags    = unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NOATIME
)

// Assemble builds the sandbox tree. It detaches the mount tree from the
// host's propagation, bind-mounts the root onto itself so it can become
// the new root, enters it and applies the plan's actions in order. Action
// destinations are relative to the root, which is the working directory
// from here on.
//
// Recursive bind mounts carry their submounts along, and the final
// read-only remount does not reach into those submounts.
func Assemble(k Kernel, id *Identity, logger *slog.Logger) (*Filesystem, error) {
	if id == nil {
		return nil, stepError("assemble", "", errTokenInvalid)
	}
	plan, err := id.spend("assemble")
	if err != nil {
		return nil, err
	}

	if err := k.mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return nil, stepError("mount", "/", err)
	}
	if err := k.mount(plan.Root, plan.Root, "", rootBindFlags, ""); err != nil {
		return nil, stepError("mount", plan.Root, err)
	}
	if err := k.chdir(plan.Root); err != nil {
		return nil, stepError("chdir", plan.Root, err)
	}
	logger.Info("root dir", "path", plan.Root)

	for _, action := range plan.Actions {
		if err := applyAction(k, action, logger); err != nil {
			return nil, err
		}
	}

	return &Filesystem{token{plan: plan}}, nil
}

func applyAction(k Kernel, action sandbox.Action, logger *slog.Logger) error {
	switch action.Kind {
	case sandbox.ActionBind:
		return bindMount(k, action, logger)
	case sandbox.ActionTmpfs:
		if err := ensureDir(k, action.Dest); err != nil {
			return err
		}
		options := action.TmpfsOptions()
		if err := k.mount(sandbox.TmpfsSource, action.Dest, "tmpfs", tmpfsFlags, options); err != nil {
			return stepError("mount", action.Dest, err)
		}
		logger.Info("tmp", "dest", action.Dest, "options", options)
		return nil
	case sandbox.ActionMkdir:
		if err := k.mkdirAll(action.Dest, dirMode); err != nil {
			return stepError("mkdir", action.Dest, err)
		}
		logger.Info("dir", "dest", action.Dest)
		return nil
	default:
		return stepError("action", action.Dest, fmt.Errorf("unknown action type %q", action.Kind))
	}
}

// bindMount mounts a host path into the tree. The destination takes the
// source's type: directories get a recursive bind onto a directory, files
// a plain bind onto an empty file.
func bindMount(k Kernel, action sandbox.Action, logger *slog.Logger) error {
	info, err := k.stat(action.Source)
	if err != nil {
		return stepError("stat", action.Source, err)
	}

	if info.IsDir() {
		if err := ensureDir(k, action.Dest); err != nil {
			return err
		}
		if err := k.mount(action.Source, action.Dest, "", dirBindFlags, ""); err != nil {
			return stepError("mount", action.Dest, err)
		}
	} else {
		if parent := filepath.Dir(action.Dest); parent != "." {
			if err := ensureDir(k, parent); err != nil {
				return err
			}
		}
		if err := k.createExclusive(action.Dest, fileMode); err != nil && !errors.Is(err, fs.ErrExist) {
			return stepError("open", action.Dest, err)
		}
		if err := k.mount(action.Source, action.Dest, "", fileBindFlags, ""); err != nil {
			return stepError("mount", action.Dest, err)
		}
	}

	logger.Info("mount", "source", action.Source, "dest", action.Dest)
	return nil
}

// ensureDir creates a directory and its parents unless something already
// exists at the path.
func ensureDir(k Kernel, name string) error {
	_, err := k.lstat(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return stepError("lstat", name, err)
	}
	if err := k.mkdirAll(name, dirMode); err != nil {
		return stepError("mkdir", name, err)
	}
	return nil
}
