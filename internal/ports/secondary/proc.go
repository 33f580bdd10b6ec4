package secondary

import (
	"context"
	"time"
)

// LaunchSpec describes one external worker invocation.
type LaunchSpec struct {
	Command    string
	Args       []string
	Dir        string   // working directory, empty inherits the parent's
	Env        []string // appended to the parent's environment
	LogPath    string   // stdout/stderr destination, empty discards output
	WindowName string   // terminal-multiplexer window label, ignored by plain launchers
}

// ProcessHandle is the capability over one spawned OS process. Liveness
// probing never returns an error; a vanished process is simply not alive.
type ProcessHandle interface {
	// PID returns the OS process id.
	PID() int

	// IsAlive probes whether the process still exists.
	IsAlive() bool

	// Terminate asks the process to exit gracefully.
	Terminate() error

	// Kill forcibly terminates the process.
	Kill() error

	// Wait blocks until the process exits or the timeout elapses, returning
	// the exit code. Exit codes are only observable for processes launched
	// in this supervisor's lifetime; re-attached handles report 0.
	Wait(timeout time.Duration) (int, error)
}

// Launcher spawns and re-attaches to external worker processes.
type Launcher interface {
	// Launch starts the worker described by spec and returns its handle.
	// A launch failure is returned as data; it never panics.
	Launch(ctx context.Context, spec LaunchSpec) (ProcessHandle, error)

	// Find re-attaches to a pid recorded by an earlier run. The handle can
	// probe and signal the process but cannot observe its exit code.
	Find(pid int) ProcessHandle
}
