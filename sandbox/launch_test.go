// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func testLauncher(t *testing.T) *Launcher {
	t.Helper()
	launcher, err := NewLauncher(&Plan{Root: "/srv/box", Args: []string{"/bin/true"}}, nil)
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	return launcher
}

func TestNewLauncherFillsHostIdentity(t *testing.T) {
	t.Parallel()

	plan := &Plan{Root: "/srv/box", Args: []string{"/bin/true"}, HostUID: -5}
	launcher, err := NewLauncher(plan, nil)
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}
	if got := launcher.Plan().HostUID; got != os.Getuid() {
		t.Errorf("HostUID = %d, want %d", got, os.Getuid())
	}
	if got := launcher.Plan().HostGID; got != os.Getgid() {
		t.Errorf("HostGID = %d, want %d", got, os.Getgid())
	}
	if plan.HostUID != -5 {
		t.Error("NewLauncher modified the caller's plan")
	}
}

func TestLauncherCommand(t *testing.T) {
	t.Parallel()

	launcher := testLauncher(t)
	setupRead, setupWrite, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer setupRead.Close()
	defer setupWrite.Close()
	reportRead, reportWrite, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer reportRead.Close()
	defer reportWrite.Close()

	cmd := launcher.command(setupRead, reportWrite)

	if len(cmd.Args) == 0 || cmd.Args[0] != InitName {
		t.Errorf("Args = %q, want argv[0] %q", cmd.Args, InitName)
	}
	attributes := cmd.SysProcAttr
	if attributes == nil {
		t.Fatal("SysProcAttr not set")
	}
	if attributes.Cloneflags != NamespaceFlags {
		t.Errorf("Cloneflags = %#x, want %#x", attributes.Cloneflags, NamespaceFlags)
	}
	for _, flag := range []uintptr{syscall.CLONE_NEWNS, syscall.CLONE_NEWUTS, syscall.CLONE_NEWPID,
		syscall.CLONE_NEWIPC, syscall.CLONE_NEWUSER, syscall.CLONE_NEWNET} {
		if attributes.Cloneflags&flag == 0 {
			t.Errorf("clone flag %#x missing", flag)
		}
	}
	if attributes.Pdeathsig != syscall.SIGKILL {
		t.Errorf("Pdeathsig = %v, want SIGKILL", attributes.Pdeathsig)
	}
	if !slices.Contains(attributes.AmbientCaps, uintptr(unix.CAP_SYS_ADMIN)) {
		t.Errorf("AmbientCaps = %v, missing CAP_SYS_ADMIN", attributes.AmbientCaps)
	}
	if len(cmd.ExtraFiles) != 2 || cmd.ExtraFiles[0] != setupRead || cmd.ExtraFiles[1] != reportWrite {
		t.Errorf("ExtraFiles = %v, want [setup report]", cmd.ExtraFiles)
	}
	if !slices.Contains(cmd.Env, SetupFDEnv+"=3") || !slices.Contains(cmd.Env, ReportFDEnv+"=4") {
		var fdEnv []string
		for _, entry := range cmd.Env {
			if strings.HasPrefix(entry, "MKBOX_") {
				fdEnv = append(fdEnv, entry)
			}
		}
		t.Errorf("descriptor variables = %q", fdEnv)
	}
}

func TestExitStatus(t *testing.T) {
	t.Parallel()

	if err := exitStatus(nil, nil); err != nil {
		t.Errorf("exitStatus(nil) = %v", err)
	}

	exited := exec.Command("/bin/sh", "-c", "exit 3").Run()
	if code, ok := IsExitError(exitStatus(exited, nil)); !ok || code != 3 {
		t.Errorf("exit 3 = %d, %v", code, ok)
	}
	// A normal exit keeps its status even after a forced kill was armed.
	if code, ok := IsExitError(exitStatus(exited, syscall.SIGTERM)); !ok || code != 3 {
		t.Errorf("exit 3 after SIGTERM = %d, %v", code, ok)
	}

	killed := exec.Command("/bin/sh", "-c", "kill -KILL $$").Run()
	if code, ok := IsExitError(exitStatus(killed, nil)); !ok || code != 128+int(syscall.SIGKILL) {
		t.Errorf("SIGKILL = %d, %v, want %d", code, ok, 128+int(syscall.SIGKILL))
	}
	// Killed by the launcher on behalf of a forwarded SIGINT.
	if code, ok := IsExitError(exitStatus(killed, syscall.SIGINT)); !ok || code != 128+int(syscall.SIGINT) {
		t.Errorf("SIGKILL for SIGINT = %d, %v, want %d", code, ok, 128+int(syscall.SIGINT))
	}

	other := exitStatus(errors.New("wait: no child"), nil)
	if _, ok := IsExitError(other); ok {
		t.Error("non-exit error should not become an ExitError")
	}
	if !strings.Contains(other.Error(), "waiting for sandbox") {
		t.Errorf("unexpected error: %v", other)
	}
}

// startIgnoring starts a process that ignores every forwarded signal, the
// way the target behaves as PID 1 of its namespace.
func startIgnoring(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", `trap "" INT TERM HUP; exec sleep 30`)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleeper: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return cmd
}

func TestForwardSignalsEscalates(t *testing.T) {
	t.Parallel()

	launcher := testLauncher(t)
	launcher.grace = 50 * time.Millisecond
	cmd := startIgnoring(t)

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	defer close(done)
	forced := make(chan os.Signal, 1)
	go func() { forced <- launcher.forwardSignals(context.Background(), cmd.Process, signals, done) }()

	signals <- syscall.SIGTERM

	select {
	case sig := <-forced:
		if sig != syscall.SIGTERM {
			t.Errorf("forced by %v, want SIGTERM", sig)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ignored signal never escalated")
	}

	err := exitStatus(cmd.Wait(), syscall.SIGTERM)
	if code, ok := IsExitError(err); !ok || code != 128+int(syscall.SIGTERM) {
		t.Errorf("exit = %v, want code %d", err, 128+int(syscall.SIGTERM))
	}
}

func TestForwardSignalsDelivers(t *testing.T) {
	t.Parallel()

	launcher := testLauncher(t)
	launcher.grace = time.Minute
	cmd := exec.Command("/bin/sh", "-c", "exec sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	forced := make(chan os.Signal, 1)
	go func() { forced <- launcher.forwardSignals(context.Background(), cmd.Process, signals, done) }()

	signals <- syscall.SIGINT
	err := exitStatus(cmd.Wait(), nil)
	close(done)
	if sig := <-forced; sig != nil {
		t.Errorf("a process that honours the signal was killed for %v", sig)
	}
	if code, ok := IsExitError(err); !ok || code != 128+int(syscall.SIGINT) {
		t.Errorf("exit = %v, want code %d", err, 128+int(syscall.SIGINT))
	}
}

func TestForwardSignalsContextKills(t *testing.T) {
	t.Parallel()

	launcher := testLauncher(t)
	cmd := startIgnoring(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer close(done)
	forced := make(chan os.Signal, 1)
	go func() { forced <- launcher.forwardSignals(ctx, cmd.Process, make(chan os.Signal), done) }()

	cancel()
	if sig := <-forced; sig != nil {
		t.Errorf("cancellation reported as forced by %v", sig)
	}
	if code, ok := IsExitError(exitStatus(cmd.Wait(), nil)); !ok || code != 128+int(syscall.SIGKILL) {
		t.Errorf("exit code = %d, want %d", code, 128+int(syscall.SIGKILL))
	}
}

func TestDieWithParent(t *testing.T) {
	// The prctl applies to the calling thread; keep it on one thread and
	// undo it afterwards.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer unix.Prctl(unix.PR_SET_PDEATHSIG, 0, 0, 0, 0)

	if err := dieWithParent(os.Getppid()); err != nil {
		t.Fatalf("dieWithParent: %v", err)
	}
	var deathSignal int32
	if err := unix.Prctl(unix.PR_GET_PDEATHSIG, uintptr(unsafe.Pointer(&deathSignal)), 0, 0, 0); err != nil {
		t.Fatalf("PR_GET_PDEATHSIG: %v", err)
	}
	if syscall.Signal(deathSignal) != syscall.SIGKILL {
		t.Errorf("parent death signal = %d, want SIGKILL", deathSignal)
	}

	// A supervisor that is already gone leaves the process reparented.
	err := dieWithParent(os.Getppid() + 1)
	var report *Report
	if !errors.As(err, &report) || report.Op != "getppid" {
		t.Errorf("changed parent = %v, want a getppid report", err)
	}
}

func TestNewLauncherRecordsSupervisor(t *testing.T) {
	t.Parallel()

	if launcher := testLauncher(t); launcher.parent != os.Getppid() {
		t.Errorf("parent = %d, want %d", launcher.parent, os.Getppid())
	}
	if launcher := testLauncher(t); launcher.grace != signalGrace {
		t.Errorf("grace = %v, want %v", launcher.grace, signalGrace)
	}
}
