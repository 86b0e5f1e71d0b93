// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// recordingKernel is a Kernel that records every call as a string and
// simulates just enough of a filesystem for the bootstrap to make its
// decisions. It never touches the host.
type recordingKernel struct {
	calls []string

	pid         int
	environment []string

	// paths maps existing paths to whether they are directories. Host
	// sources are absolute, destinations relative to the sandbox root.
	paths map[string]bool

	// written holds the data of every writeFile call by path.
	written map[string]string

	// failures makes the call with this "name arg" key fail.
	failures map[string]error

	execBinary string
	execArgs   []string
	execEnv    []string
}

func newRecordingKernel() *recordingKernel {
	return &recordingKernel{
		pid:         1,
		environment: []string{"PATH=/usr/bin:/bin", "HOME=/root"},
		paths:       make(map[string]bool),
		written:     make(map[string]string),
		failures:    make(map[string]error),
	}
}

// withDir marks paths as existing directories.
func (k *recordingKernel) withDir(paths ...string) *recordingKernel {
	for _, path := range paths {
		k.paths[path] = true
	}
	return k
}

// withFile marks paths as existing regular files.
func (k *recordingKernel) withFile(paths ...string) *recordingKernel {
	for _, path := range paths {
		k.paths[path] = false
	}
	return k
}

// failOn makes the call name with first argument arg return err.
func (k *recordingKernel) failOn(name, arg string, err error) *recordingKernel {
	k.failures[name+" "+arg] = err
	return k
}

func (k *recordingKernel) record(name string, args ...any) error {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	k.calls = append(k.calls, fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", ")))
	first := ""
	if len(parts) > 0 {
		first = parts[0]
	}
	return k.failures[name+" "+first]
}

// called reports whether any recorded call starts with prefix.
func (k *recordingKernel) called(prefix string) bool {
	for _, call := range k.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

// indexOf returns the position of the first call equal to call, or -1.
func (k *recordingKernel) indexOf(call string) int {
	for i, recorded := range k.calls {
		if recorded == call {
			return i
		}
	}
	return -1
}

func (k *recordingKernel) lockOSThread() { k.record("lockOSThread") }
func (k *recordingKernel) environ() []string {
	return append([]string(nil), k.environment...)
}

func (k *recordingKernel) getpid() int {
	k.record("getpid")
	return k.pid
}

func (k *recordingKernel) setPdeathsig(sig unix.Signal) error {
	return k.record("prctl", "PR_SET_PDEATHSIG", int(sig))
}

func (k *recordingKernel) setDumpable(dumpable uintptr) error {
	return k.record("prctl", "PR_SET_DUMPABLE", dumpable)
}

func (k *recordingKernel) setNoNewPrivs() error    { return k.record("prctl", "PR_SET_NO_NEW_PRIVS", 1) }
func (k *recordingKernel) lastCap() error          { return k.record("lastCap") }
func (k *recordingKernel) dropCapabilities() error { return k.record("dropCapabilities") }

func (k *recordingKernel) sethostname(name string) error   { return k.record("sethostname", name) }
func (k *recordingKernel) setdomainname(name string) error { return k.record("setdomainname", name) }

func (k *recordingKernel) setresuid(ruid, euid, suid int) error {
	return k.record("setresuid", ruid, euid, suid)
}

func (k *recordingKernel) setresgid(rgid, egid, sgid int) error {
	return k.record("setresgid", rgid, egid, sgid)
}

func (k *recordingKernel) writeFile(name string, data []byte) error {
	if err := k.record("writeFile", name, fmt.Sprintf("%q", data)); err != nil {
		return err
	}
	k.written[name] = string(data)
	return nil
}

func (k *recordingKernel) createExclusive(name string, perm os.FileMode) error {
	if err := k.record("createExclusive", name, fmt.Sprintf("%#o", perm)); err != nil {
		return err
	}
	if _, exists := k.paths[name]; exists {
		return &fs.PathError{Op: "open", Path: name, Err: syscall.EEXIST}
	}
	k.paths[name] = false
	return nil
}

func (k *recordingKernel) stat(name string) (os.FileInfo, error) {
	if err := k.record("stat", name); err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return k.lookup("stat", name)
}

func (k *recordingKernel) lstat(name string) (os.FileInfo, error) {
	if err := k.record("lstat", name); err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: err}
	}
	return k.lookup("lstat", name)
}

func (k *recordingKernel) lookup(op, name string) (os.FileInfo, error) {
	dir, exists := k.paths[name]
	if !exists {
		return nil, &fs.PathError{Op: op, Path: name, Err: syscall.ENOENT}
	}
	return fakeFileInfo{name: filepath.Base(name), dir: dir}, nil
}

func (k *recordingKernel) mkdir(name string, perm os.FileMode) error {
	if err := k.record("mkdir", name, fmt.Sprintf("%#o", perm)); err != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: err}
	}
	if _, exists := k.paths[name]; exists {
		return &fs.PathError{Op: "mkdir", Path: name, Err: syscall.EEXIST}
	}
	k.paths[name] = true
	return nil
}

func (k *recordingKernel) mkdirAll(name string, perm os.FileMode) error {
	if err := k.record("mkdirAll", name, fmt.Sprintf("%#o", perm)); err != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: err}
	}
	for path := name; path != "." && path != "/"; path = filepath.Dir(path) {
		k.paths[path] = true
	}
	return nil
}

func (k *recordingKernel) rmdir(name string) error { return k.record("rmdir", name) }
func (k *recordingKernel) chdir(dir string) error  { return k.record("chdir", dir) }
func (k *recordingKernel) chroot(dir string) error { return k.record("chroot", dir) }

func (k *recordingKernel) mount(source, target, fstype string, flags uintptr, data string) error {
	return k.record("mount", source, target, fstype, fmt.Sprintf("%#x", flags), data)
}

func (k *recordingKernel) unmount(target string, flags int) error {
	return k.record("umount2", target, flags)
}

func (k *recordingKernel) pivotRoot(newroot, putold string) error {
	return k.record("pivot_root", newroot, putold)
}

func (k *recordingKernel) exec(argv0 string, argv, envv []string) error {
	if err := k.record("execve", argv0, strings.Join(argv, " ")); err != nil {
		return err
	}
	k.execBinary = argv0
	k.execArgs = argv
	k.execEnv = envv
	return nil
}

type fakeFileInfo struct {
	name string
	dir  bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

func (f fakeFileInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// mountCall formats a mount the way recordingKernel records it.
func mountCall(source, target, fstype string, flags uintptr, data string) string {
	return fmt.Sprintf("mount(%s, %s, %s, %#x, %s)", source, target, fstype, flags, data)
}
