package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// pidFileName is the daemon pidfile, written under the state directory.
const pidFileName = "foreman.pid"

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the foreman work loop in the foreground",
		Long: `Run the autonomous work loop until interrupted.

Each cycle polls the backlog, keeps the spec pipeline stocked, dispatches
independent implementation work to parallel workers, and reconciles
finished workers one merge at a time. SIGINT or SIGTERM stops the loop
after the current cycle completes, so shutdown can take up to one poll
interval.

Examples:
  foreman run                 # Run in the foreground
  nohup foreman run &         # Run detached
  foreman stop                # Stop a detached daemon`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir := wire.StateDir()
			pidPath := filepath.Join(stateDir, pidFileName)

			if pid, err := readPidfile(pidPath); err == nil {
				if processAlive(pid) {
					return fmt.Errorf("foreman is already running (pid %d)", pid)
				}
				os.Remove(pidPath)
			}

			if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
				return fmt.Errorf("failed to write pidfile: %w", err)
			}
			defer os.Remove(pidPath)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("foreman running (pid %d, state dir %s)\n", os.Getpid(), stateDir)

			if err := wire.Controller().Run(ctx); err != nil {
				return fmt.Errorf("work loop failed: %w", err)
			}

			fmt.Println("✓ foreman stopped")
			return nil
		},
	}
}

// readPidfile parses the daemon pid from the pidfile at path.
func readPidfile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether pid refers to a live process. Signal 0 runs
// the existence and permission checks without delivering a signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
