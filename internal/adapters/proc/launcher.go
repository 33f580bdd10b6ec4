// Package proc contains the plain os/exec launcher for worker processes.
package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// livenessPollInterval paces Wait on re-attached handles, which have no
// exit notification and must poll the pid instead.
const livenessPollInterval = 100 * time.Millisecond

// Launcher spawns workers as detached OS processes.
type Launcher struct{}

// NewLauncher creates a new process launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// Launch starts the worker described by spec. The context bounds the launch
// itself, not the worker: workers run in their own session and deliberately
// outlive controller restarts.
func (l *Launcher) Launch(ctx context.Context, spec secondary.LaunchSpec) (secondary.ProcessHandle, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("launch spec has no command")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch aborted: %w", err)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	if spec.LogPath != "" {
		logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open worker log %s: %w", spec.LogPath, err)
		}
		// The child holds its own descriptor after Start; the parent's copy
		// can be closed as soon as Launch returns.
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	// Own session: terminal signals and controller shutdown never propagate
	// to the worker.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	h := &ownedHandle{
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go h.reap(cmd)
	return h, nil
}

// Find re-attaches to a pid recorded by an earlier run.
func (l *Launcher) Find(pid int) secondary.ProcessHandle {
	return Attach(pid)
}

// ownedHandle is the handle over a process started by this launcher. A
// background goroutine reaps the child and records its exit code.
type ownedHandle struct {
	pid      int
	done     chan struct{}
	exitCode int // valid only after done is closed
}

func (h *ownedHandle) reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ExitCode is -1 when the process was killed by a signal.
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	} else {
		code = cmd.ProcessState.ExitCode()
	}
	h.exitCode = code
	close(h.done)
}

func (h *ownedHandle) PID() int {
	return h.pid
}

func (h *ownedHandle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return processExists(h.pid)
	}
}

func (h *ownedHandle) Terminate() error {
	return signalProcess(h.pid, syscall.SIGTERM)
}

func (h *ownedHandle) Kill() error {
	return signalProcess(h.pid, syscall.SIGKILL)
}

func (h *ownedHandle) Wait(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		<-h.done
		return h.exitCode, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.exitCode, nil
	case <-timer.C:
		return 0, fmt.Errorf("process %d did not exit within %s", h.pid, timeout)
	}
}

// Attach wraps a pid that this launcher did not start. The handle can probe
// and signal the process, but its exit code is not observable.
func Attach(pid int) secondary.ProcessHandle {
	return &attachedHandle{pid: pid}
}

type attachedHandle struct {
	pid int
}

func (h *attachedHandle) PID() int {
	return h.pid
}

func (h *attachedHandle) IsAlive() bool {
	return processExists(h.pid)
}

func (h *attachedHandle) Terminate() error {
	return signalProcess(h.pid, syscall.SIGTERM)
}

func (h *attachedHandle) Kill() error {
	return signalProcess(h.pid, syscall.SIGKILL)
}

func (h *attachedHandle) Wait(timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for processExists(h.pid) {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, fmt.Errorf("process %d did not exit within %s", h.pid, timeout)
		}
		time.Sleep(livenessPollInterval)
	}
	return 0, nil
}

// processExists probes a pid with signal 0. EPERM means the process exists
// but belongs to another user, which still counts as alive.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}

// Ensure Launcher implements the interface
var _ secondary.Launcher = (*Launcher)(nil)
