// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"errors"
	"io/fs"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/mkbox/sandbox"
)

// oldRootName is the pivot_root put_old directory, relative to the new root.
const oldRootName = ".oldroot"

// sealFlags is the final state of "/". Nothing is mounted after it.
const sealFlags = unix.MS_REMOUNT | unix.MS_BIND | unix.MS_RDONLY |
	unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV

// Seal makes the assembled tree the root of the mount namespace, detaches
// and removes the host root and remounts "/" read-only. The working
// directory must be the sandbox root, as [Assemble] leaves it.
func Seal(k Kernel, filesystem *Filesystem, logger *slog.Logger) (*SealedRoot, error) {
	if filesystem == nil {
		return nil, stepError("seal", "", errTokenInvalid)
	}
	plan, err := filesystem.spend("seal")
	if err != nil {
		return nil, err
	}

	// A leftover directory from an earlier run is fine: it is empty once
	// its mount has been detached.
	if err := k.mkdir(oldRootName, dirMode); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, stepError("mkdir", oldRootName, err)
	}
	if err := k.pivotRoot(".", oldRootName); err != nil {
		return nil, stepError("pivot_root", ".", err)
	}
	if err := k.chroot("."); err != nil {
		return nil, stepError("chroot", ".", err)
	}
	if err := k.chdir("/"); err != nil {
		return nil, stepError("chdir", "/", err)
	}
	if err := k.unmount(sandbox.OldRootPath, unix.MNT_DETACH); err != nil {
		return nil, stepError("umount2", sandbox.OldRootPath, err)
	}
	if err := k.rmdir(sandbox.OldRootPath); err != nil {
		return nil, stepError("rmdir", sandbox.OldRootPath, err)
	}
	if err := k.mount("/", "/", "", sealFlags, ""); err != nil {
		return nil, stepError("mount", "/", err)
	}
	logger.Debug("root sealed read-only")

	return &SealedRoot{token{plan: plan}}, nil
}
