// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nsinit

import (
	"os"
	"runtime"

	"github.com/moby/sys/capability"
	"golang.org/x/sys/unix"
)

// Kernel performs the state-changing system calls of the bootstrap. It must
// only be used from the goroutine that owns it: several calls act on the
// calling thread.
type Kernel interface {
	// lockOSThread provides [runtime.LockOSThread].
	lockOSThread()
	// getpid provides [os.Getpid].
	getpid() int
	// environ provides [os.Environ].
	environ() []string

	// setPdeathsig provides prctl(PR_SET_PDEATHSIG).
	setPdeathsig(sig unix.Signal) error
	// setDumpable provides prctl(PR_SET_DUMPABLE).
	setDumpable(dumpable uintptr) error
	// setNoNewPrivs provides prctl(PR_SET_NO_NEW_PRIVS).
	setNoNewPrivs() error
	// lastCap reads the highest capability number. The result is cached
	// by the capability package for use after /proc is gone.
	lastCap() error
	// dropCapabilities clears the effective, permitted, inheritable,
	// bounding and ambient sets.
	dropCapabilities() error

	// sethostname provides [unix.Sethostname].
	sethostname(name string) error
	// setdomainname provides [unix.Setdomainname].
	setdomainname(name string) error
	// setresuid provides [unix.Setresuid].
	setresuid(ruid, euid, suid int) error
	// setresgid provides [unix.Setresgid].
	setresgid(rgid, egid, sgid int) error

	// writeFile opens an existing file write-only, writes data and closes it.
	writeFile(name string, data []byte) error
	// createExclusive creates an empty file with O_CREAT|O_EXCL.
	createExclusive(name string, perm os.FileMode) error
	// stat provides [os.Stat].
	stat(name string) (os.FileInfo, error)
	// lstat provides [os.Lstat].
	lstat(name string) (os.FileInfo, error)
	// mkdir provides [os.Mkdir].
	mkdir(name string, perm os.FileMode) error
	// mkdirAll provides [os.MkdirAll].
	mkdirAll(name string, perm os.FileMode) error
	// rmdir provides [unix.Rmdir].
	rmdir(name string) error
	// chdir provides [unix.Chdir].
	chdir(dir string) error

	// mount provides [unix.Mount].
	mount(source, target, fstype string, flags uintptr, data string) error
	// unmount provides [unix.Unmount].
	unmount(target string, flags int) error
	// pivotRoot provides [unix.PivotRoot].
	pivotRoot(newroot, putold string) error
	// chroot provides [unix.Chroot].
	chroot(dir string) error

	// exec provides [unix.Exec]. It only returns on failure.
	exec(argv0 string, argv, envv []string) error
}

// Direct returns the Kernel that makes real system calls.
func Direct() Kernel { return direct{} }

type direct struct{}

func (direct) lockOSThread()        { runtime.LockOSThread() }
func (direct) getpid() int          { return os.Getpid() }
func (direct) environ() []string    { return os.Environ() }
func (direct) setNoNewPrivs() error { return unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0) }

func (direct) setPdeathsig(sig unix.Signal) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(sig), 0, 0, 0)
}

func (direct) setDumpable(dumpable uintptr) error {
	return unix.Prctl(unix.PR_SET_DUMPABLE, dumpable, 0, 0, 0)
}

func (direct) lastCap() error {
	_, err := capability.LastCap()
	return err
}

func (direct) dropCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return err
	}
	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	// Apply drops the bounding set first, while CAP_SETPCAP is still
	// effective.
	return caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS)
}

func (direct) sethostname(name string) error   { return unix.Sethostname([]byte(name)) }
func (direct) setdomainname(name string) error { return unix.Setdomainname([]byte(name)) }

func (direct) setresuid(ruid, euid, suid int) error { return unix.Setresuid(ruid, euid, suid) }
func (direct) setresgid(rgid, egid, sgid int) error { return unix.Setresgid(rgid, egid, sgid) }

func (direct) writeFile(name string, data []byte) error {
	file, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (direct) createExclusive(name string, perm os.FileMode) error {
	fd, err := unix.Open(name, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, uint32(perm.Perm()))
	if err != nil {
		return &os.PathError{Op: "open", Path: name, Err: err}
	}
	return unix.Close(fd)
}

func (direct) stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (direct) lstat(name string) (os.FileInfo, error)       { return os.Lstat(name) }
func (direct) mkdir(name string, perm os.FileMode) error    { return os.Mkdir(name, perm) }
func (direct) mkdirAll(name string, perm os.FileMode) error { return os.MkdirAll(name, perm) }
func (direct) rmdir(name string) error                      { return unix.Rmdir(name) }
func (direct) chdir(dir string) error                       { return unix.Chdir(dir) }

func (direct) mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (direct) unmount(target string, flags int) error { return unix.Unmount(target, flags) }
func (direct) pivotRoot(newroot, putold string) error { return unix.PivotRoot(newroot, putold) }
func (direct) chroot(dir string) error                { return unix.Chroot(dir) }

func (direct) exec(argv0 string, argv, envv []string) error {
	return unix.Exec(argv0, argv, envv)
}
