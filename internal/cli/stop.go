package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// StopCmd returns the stop command
func StopCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running foreman daemon",
		Long: `Signal a running daemon with SIGTERM and wait for it to exit.

The daemon finishes its current cycle before exiting, so stopping can
take up to one poll interval plus any in-flight dispatch or merge.

Examples:
  foreman stop
  foreman stop --wait 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := filepath.Join(wire.StateDir(), pidFileName)

			pid, err := readPidfile(pidPath)
			if os.IsNotExist(err) {
				fmt.Println("foreman is not running.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read pidfile: %w", err)
			}

			if !processAlive(pid) {
				os.Remove(pidPath)
				fmt.Printf("foreman is not running (removed stale pidfile for pid %d).\n", pid)
				return nil
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find pid %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to signal pid %d: %w", pid, err)
			}

			fmt.Printf("Stopping foreman (pid %d)...\n", pid)
			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				if !processAlive(pid) {
					fmt.Println("✓ foreman stopped")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("foreman (pid %d) did not exit within %s; it may be mid-merge", pid, wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the daemon to exit")

	return cmd
}
