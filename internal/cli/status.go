package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/core/stats"
	"github.com/example/foreman/internal/wire"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, active work, and queue status",
		Long: `Answer "what is foreman doing right now?": daemon liveness, the
configuration in effect, tasks currently in flight, and queue depth.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg := wire.Config()
			stateDir := wire.StateDir()

			if pid, err := readPidfile(filepath.Join(stateDir, pidFileName)); err == nil && processAlive(pid) {
				fmt.Printf("Daemon: running (pid %d)\n", pid)
			} else {
				fmt.Println("Daemon: stopped")
			}
			fmt.Printf("State dir: %s\n", stateDir)
			if cfg.TrunkPath == "" {
				fmt.Println("Trunk: not configured")
			} else {
				fmt.Printf("Trunk: %s\n", cfg.TrunkPath)
			}
			fmt.Printf("Poll interval: %s\n", cfg.PollInterval())
			fmt.Println()

			snap, err := wire.SnapshotStore().Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			if snap == nil || len(snap.ActiveTasks) == 0 {
				fmt.Println("No active tasks.")
			} else {
				fmt.Printf("Active tasks (as of %s):\n", snap.LastUpdate.Format(time.RFC3339))

				keys := make([]string, 0, len(snap.ActiveTasks))
				for key := range snap.ActiveTasks {
					keys = append(keys, key)
				}
				sort.Strings(keys)

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tTASK\tPID\tKIND\tAGE")
				fmt.Fprintln(w, "---\t----\t---\t----\t---")
				for _, key := range keys {
					task := snap.ActiveTasks[key]
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						key, task.TaskID, task.PID, task.Kind, formatAge(time.Since(task.StartedAt)))
				}
				w.Flush()
			}
			fmt.Println()

			qs, err := wire.QueueService().Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get queue stats: %w", err)
			}
			queued := 0
			for _, n := range qs.DepthByBand {
				queued += n
			}
			fmt.Printf("Queue depth: %d queued (high %d / normal %d / low %d)\n",
				queued,
				qs.DepthByBand[stats.BandHigh],
				qs.DepthByBand[stats.BandNormal],
				qs.DepthByBand[stats.BandLow],
			)
			return nil
		},
	}
}
