// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// NamespaceFlags are the clone flags of the init process. All six
// namespaces are created by one clone call; there is no fallback to fewer.
const NamespaceFlags = unix.CLONE_NEWNS | unix.CLONE_NEWUTS | unix.CLONE_NEWPID |
	unix.CLONE_NEWIPC | unix.CLONE_NEWUSER | unix.CLONE_NEWNET

// initCapabilities are raised into the init's ambient set so they survive
// the re-exec. The init drops every capability before running the target.
var initCapabilities = []uintptr{
	unix.CAP_SYS_ADMIN,  // mount, pivot_root, sethostname
	unix.CAP_SYS_CHROOT, // chroot
	unix.CAP_SETUID,     // uid_map, setresuid
	unix.CAP_SETGID,     // gid_map, setresgid
	unix.CAP_SETPCAP,    // bounding set drop
}

// forwardedSignals are relayed from the launcher to the init.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// signalGrace is how long the init may outlive a forwarded signal. The
// target runs as PID 1 of its namespace, where the kernel discards every
// signal the target has no handler for.
const signalGrace = 2 * time.Second

// startupParent is the supervisor's pid as seen when the process started.
var startupParent = os.Getppid()

// Launcher starts the init process for a plan and waits for the target.
type Launcher struct {
	plan   *Plan
	logger *slog.Logger

	// parent is the supervisor the sandbox must not outlive.
	parent int
	grace  time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewLauncher validates the plan and prepares a launcher for it. The
// launcher fills in the host side of the identity mapping.
func NewLauncher(plan *Plan, logger *slog.Logger) (*Launcher, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sealed := *plan
	sealed.HostUID = os.Getuid()
	sealed.HostGID = os.Getgid()

	return &Launcher{
		plan:   &sealed,
		logger: logger,
		parent: startupParent,
		grace:  signalGrace,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Plan returns the plan the launcher will send to the init.
func (l *Launcher) Plan() *Plan {
	return l.plan
}

// command builds the re-exec of the current binary as the init. setup and
// report become descriptors 3 and 4 in the child.
func (l *Launcher) command(setup, report *os.File) *exec.Cmd {
	cmd := reexec.Command(InitName)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = l.Stdin, l.Stdout, l.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:  NamespaceFlags,
		Pdeathsig:   syscall.SIGKILL,
		AmbientCaps: initCapabilities,
	}
	cmd.ExtraFiles = []*os.File{setup, report}
	cmd.Env = append(os.Environ(),
		SetupFDEnv+"="+strconv.Itoa(setupFD),
		ReportFDEnv+"="+strconv.Itoa(reportFD),
	)
	return cmd
}

// Run starts the sandbox and waits for the target to exit. A bootstrap
// failure is returned as a [*Report]; a non-zero exit of the target as an
// [*ExitError] whose code follows the shell convention (128+N for a
// signal).
func (l *Launcher) Run(ctx context.Context) error {
	// Pdeathsig fires when the thread that started the child exits, not
	// the process. Keep this goroutine on one thread until the child is
	// reaped.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := dieWithParent(l.parent); err != nil {
		return err
	}

	setupRead, setupWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating setup pipe: %w", err)
	}
	defer setupWrite.Close()
	reportRead, reportWrite, err := os.Pipe()
	if err != nil {
		setupRead.Close()
		return fmt.Errorf("creating report pipe: %w", err)
	}
	defer reportRead.Close()

	// Registered before the clone so a signal arriving during startup is
	// relayed instead of killing the launcher.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, forwardedSignals...)
	defer signal.Stop(signals)

	cmd := l.command(setupRead, reportWrite)
	l.logger.Info("starting sandbox init", "root", l.plan.Root, "actions", len(l.plan.Actions))
	startErr := cmd.Start()
	setupRead.Close()
	reportWrite.Close()
	if startErr != nil {
		if reason := DetectCapabilities().SkipReason(); reason != "" {
			l.logger.Warn("cannot create namespaces", "hint", reason)
		}
		return NewReport("clone", "", startErr)
	}

	done := make(chan struct{})
	forced := make(chan os.Signal, 1)
	go func() { forced <- l.forwardSignals(ctx, cmd.Process, signals, done) }()
	stopForwarding := func() os.Signal {
		close(done)
		return <-forced
	}

	if err := WritePlan(setupWrite, l.plan); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		stopForwarding()
		return err
	}
	setupWrite.Close()

	report, reportErr := ReadReport(reportRead)
	waitErr := cmd.Wait()
	killedFor := stopForwarding()

	if reportErr != nil {
		return reportErr
	}
	if report != nil {
		return report
	}
	return exitStatus(waitErr, killedFor)
}

// dieWithParent makes the launcher, and through the init's own Pdeathsig
// the whole sandbox, die with the supervisor. A supervisor that exited
// before the prctl took effect shows up as a changed parent pid.
func dieWithParent(parent int) error {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		return NewReport("prctl", "PR_SET_PDEATHSIG", err)
	}
	if ppid := os.Getppid(); ppid != parent {
		return NewReport("getppid", strconv.Itoa(ppid), fmt.Errorf("supervisor %d exited before the sandbox started", parent))
	}
	return nil
}

// forwardSignals relays signals to the init until done is closed. An init
// still running l.grace after the first forwarded signal is killed, which
// tears down its PID namespace; the signal that forced the kill is
// returned. Cancelling ctx kills the init as well.
func (l *Launcher) forwardSignals(ctx context.Context, process *os.Process, signals <-chan os.Signal, done <-chan struct{}) os.Signal {
	var (
		pending os.Signal
		expired <-chan time.Time
	)
	for {
		select {
		case sig := <-signals:
			l.logger.Info("forwarding signal", "signal", sig)
			if err := process.Signal(sig); err != nil {
				if !errors.Is(err, os.ErrProcessDone) {
					l.logger.Warn("forwarding signal failed", "signal", sig, "error", err)
				}
				continue
			}
			if pending == nil {
				pending = sig
				timer := time.NewTimer(l.grace)
				defer timer.Stop()
				expired = timer.C
			}
		case <-expired:
			l.logger.Warn("sandbox ignored signal, killing it", "signal", pending, "grace", l.grace)
			process.Kill()
			return pending
		case <-ctx.Done():
			process.Kill()
			return nil
		case <-done:
			return nil
		}
	}
}

// exitStatus converts the result of cmd.Wait into the launcher's error.
// When the launcher had to kill the init after forwarding killedFor, the
// exit code is the one killedFor itself would have produced.
func exitStatus(err error, killedFor os.Signal) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("waiting for sandbox: %w", err)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	sig := status.Signal()
	if forwarded, ok := killedFor.(syscall.Signal); ok && sig == syscall.SIGKILL {
		sig = forwarded
	}
	return &ExitError{Code: 128 + int(sig)}
}
