// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
)

const (
	uidMapPath    = "/proc/self/uid_map"
	gidMapPath    = "/proc/self/gid_map"
	setgroupsPath = "/proc/self/setgroups"
)

// prctl(PR_SET_DUMPABLE) values.
const (
	suidDumpDisable = 0
	suidDumpUser    = 1
)

// MapIdentity writes the one-line uid and gid maps of the user namespace
// and switches to the inner ids. An id without a plan entry stays
// unmapped.
//
// Writing the gid map from an unprivileged parent requires setgroups to be
// denied first. Kernels without /proc/self/setgroups predate that rule, so
// ENOENT there is the one tolerated failure.
func MapIdentity(k Kernel, ns *Namespaces, logger *slog.Logger) (*Identity, error) {
	if ns == nil {
		return nil, stepError("identity", "", errTokenInvalid)
	}
	plan, err := ns.spend("identity")
	if err != nil {
		return nil, err
	}
	if plan.UID == nil && plan.GID == nil {
		logger.Debug("no identity mapping requested")
		return &Identity{token{plan: plan}}, nil
	}

	// Keep /proc/self owned by this process while the maps are written.
	if err := k.setDumpable(suidDumpUser); err != nil {
		return nil, stepError("prctl", "PR_SET_DUMPABLE", err)
	}

	if plan.UID != nil {
		uid := *plan.UID
		if err := k.writeFile(uidMapPath, idMapLine(uid, plan.HostUID)); err != nil {
			return nil, stepError("write", uidMapPath, err)
		}
		if err := k.setresuid(uid, uid, uid); err != nil {
			return nil, stepError("setresuid", strconv.Itoa(uid), err)
		}
		logger.Info("uid", "inner", uid, "outer", plan.HostUID)
	}

	if plan.GID != nil {
		gid := *plan.GID
		if err := k.writeFile(setgroupsPath, []byte("deny")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, stepError("write", setgroupsPath, err)
		}
		if err := k.writeFile(gidMapPath, idMapLine(gid, plan.HostGID)); err != nil {
			return nil, stepError("write", gidMapPath, err)
		}
		if err := k.setresgid(gid, gid, gid); err != nil {
			return nil, stepError("setresgid", strconv.Itoa(gid), err)
		}
		logger.Info("gid", "inner", gid, "outer", plan.HostGID)
	}

	if err := k.setDumpable(suidDumpDisable); err != nil {
		return nil, stepError("prctl", "PR_SET_DUMPABLE", err)
	}

	return &Identity{token{plan: plan}}, nil
}

// idMapLine formats a single-entry id map: inner id, outer id, count 1.
func idMapLine(inner, outer int) []byte {
	return fmt.Appendf(nil, "%d %d 1\n", inner, outer)
}
