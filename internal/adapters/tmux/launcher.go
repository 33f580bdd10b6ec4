// Package tmux contains the gotmux-backed launcher. Workers run inside tmux
// windows so operators can attach to the session and watch them live.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"

	"github.com/example/foreman/internal/adapters/proc"
	"github.com/example/foreman/internal/ports/secondary"
)

// Launcher spawns workers as tmux windows in a shared session. The handle it
// returns probes by pid, exactly like a re-attached plain-process handle:
// tmux owns the process tree, so exit codes are not observable here.
type Launcher struct {
	sessionName string
}

// NewLauncher creates a tmux launcher targeting the named session. The
// session is created on first launch if it does not exist.
func NewLauncher(sessionName string) *Launcher {
	if sessionName == "" {
		sessionName = "foreman"
	}
	return &Launcher{sessionName: sessionName}
}

// Available reports whether a tmux binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// SessionName returns the session workers are launched into.
func (l *Launcher) SessionName() string {
	return l.sessionName
}

// Launch opens a window for the worker and makes the worker the pane's root
// process, so the pane pid is the worker pid.
func (l *Launcher) Launch(ctx context.Context, spec secondary.LaunchSpec) (secondary.ProcessHandle, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("launch spec has no command")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch aborted: %w", err)
	}

	tmuxc, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}

	session, err := l.ensureSession(tmuxc, spec.Dir)
	if err != nil {
		return nil, err
	}

	windowName := spec.WindowName
	if windowName == "" {
		windowName = "worker"
	}

	window, err := session.NewWindow(&gotmux.NewWindowOptions{
		WindowName:     windowName,
		StartDirectory: spec.Dir,
		DoNotAttach:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window %s: %w", windowName, err)
	}

	panes, err := window.ListPanes()
	if err != nil || len(panes) == 0 {
		return nil, fmt.Errorf("failed to get worker pane: %w", err)
	}
	pane := panes[0]

	// pipe-pane is set up before the worker starts so no output is lost.
	if spec.LogPath != "" {
		if err := exec.Command("tmux", "pipe-pane", "-t", pane.Id, "-o", "cat >> "+spec.LogPath).Run(); err != nil {
			return nil, fmt.Errorf("failed to pipe worker output: %w", err)
		}
	}

	// respawn-pane -k replaces the pane's shell with the worker command
	// (NewWindowOptions has no ShellCommand, same workaround as the session
	// enrichment code this launcher grew out of). The pane closes on its own
	// when the worker exits.
	if err := exec.Command("tmux", "respawn-pane", "-t", pane.Id, "-k", shellCommand(spec)).Run(); err != nil {
		return nil, fmt.Errorf("failed to respawn worker pane: %w", err)
	}

	pid, err := panePID(pane.Id)
	if err != nil {
		return nil, err
	}
	return proc.Attach(pid), nil
}

// Find re-attaches to a pid recorded by an earlier run.
func (l *Launcher) Find(pid int) secondary.ProcessHandle {
	return proc.Attach(pid)
}

// ensureSession returns the launcher's session, creating it when missing.
// A fresh session keeps its initial shell window so operators who attach
// always land somewhere useful.
func (l *Launcher) ensureSession(tmuxc *gotmux.Tmux, dir string) (*gotmux.Session, error) {
	sessions, err := tmuxc.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, s := range sessions {
		if s.Name == l.sessionName {
			return s, nil
		}
	}

	session, err := tmuxc.NewSession(&gotmux.SessionOptions{
		Name:           l.sessionName,
		StartDirectory: dir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", l.sessionName, err)
	}
	return session, nil
}

// shellCommand renders a launch spec as the single shell-command argument
// respawn-pane expects. Environment overrides ride on env(1) because tmux
// has no per-respawn environment flag.
func shellCommand(spec secondary.LaunchSpec) string {
	parts := make([]string, 0, len(spec.Env)+len(spec.Args)+2)
	if len(spec.Env) > 0 {
		parts = append(parts, "env")
		parts = append(parts, spec.Env...)
	}
	parts = append(parts, spec.Command)
	parts = append(parts, spec.Args...)
	return strings.Join(parts, " ")
}

// panePID resolves the root pid of a pane via display-message. After
// respawn-pane -k that root process is the worker itself.
func panePID(paneID string) (int, error) {
	out, err := exec.Command("tmux", "display-message", "-p", "-t", paneID, "#{pane_pid}").Output()
	if err != nil {
		return 0, fmt.Errorf("failed to read pane pid: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected pane pid %q: %w", strings.TrimSpace(string(out)), err)
	}
	return pid, nil
}

// Ensure Launcher implements the interface
var _ secondary.Launcher = (*Launcher)(nil)
