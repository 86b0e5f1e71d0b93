// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nsinit is the init process of a mkbox sandbox.
//
// The launcher (package sandbox) re-executes the mkbox binary under the
// reexec name [sandbox.InitName] inside six fresh namespaces. [Main] runs in
// that copy as PID 1. It receives the [sandbox.Plan] over the setup pipe and
// runs the bootstrap sequence:
//
//	Isolate      death signal, PID 1 check, hostname and domainname
//	MapIdentity  uid_map, setgroups, gid_map, setresuid, setresgid
//	Assemble     private mount tree, root self-bind, plan actions
//	Seal         pivot_root, detach the old root, read-only remount
//	Handoff      working directory, no_new_privs, capability drop, execve
//
// Each step takes the token returned by the step before it ([Namespaces],
// [Identity], [Filesystem], [SealedRoot]), so the order is fixed at compile
// time. A token can be spent once. Every step performs its system calls
// through a [Kernel]; tests substitute a recorder and replay the whole
// sequence without privileges.
//
// The first failing call ends the bootstrap. Its operation name, argument
// and errno reach the launcher as a [sandbox.Report] over the report pipe.
// No step rolls back earlier work: the namespaces die with the init.
package nsinit
