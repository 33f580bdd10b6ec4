package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/core/backlog"
	"github.com/example/foreman/internal/core/stats"
	"github.com/example/foreman/internal/wire"
)

// DashboardCmd returns the dashboard command
func DashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show a colorized one-screen overview",
		Long: `Render a one-screen overview: daemon liveness, backlog progress,
queue depth, live workers, merge flags, and the latest audit events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg := wire.Config()

			title := color.New(color.Bold).Sprint("FOREMAN")
			if pid, err := readPidfile(filepath.Join(wire.StateDir(), pidFileName)); err == nil && processAlive(pid) {
				fmt.Printf("%s  %s\n", title, color.New(color.FgHiGreen).Sprintf("● running (pid %d)", pid))
			} else {
				fmt.Printf("%s  %s\n", title, color.New(color.FgRed).Sprint("● stopped"))
			}
			fmt.Println()

			if cfg.TrunkPath == "" {
				fmt.Println("Backlog: trunk not configured")
			} else if raw, err := wire.BacklogSource().GetAllItems(ctx); err != nil {
				fmt.Printf("Backlog: %s\n", color.New(color.FgYellow).Sprintf("unavailable (%v)", err))
			} else {
				items := coreItems(raw)
				counts := backlog.CountByStatus(items)
				fmt.Printf("Backlog: %d planned / %d in progress / %d blocked / %s\n",
					counts[backlog.StatusPlanned],
					counts[backlog.StatusInProgress],
					counts[backlog.StatusBlocked],
					color.New(color.FgHiGreen).Sprintf("%d complete", counts[backlog.StatusComplete]),
				)
				fmt.Printf("         %d awaiting specs, %d ready to implement\n",
					len(backlog.MissingSpecs(items)),
					len(backlog.Implementables(items)),
				)
			}
			fmt.Println()

			qs, err := wire.QueueService().Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get queue stats: %w", err)
			}
			high := fmt.Sprintf("%d", qs.DepthByBand[stats.BandHigh])
			if qs.DepthByBand[stats.BandHigh] > 0 {
				high = color.New(color.FgHiRed).Sprint(high)
			}
			fmt.Printf("Queue:   %s high / %d normal / %d low\n",
				high,
				qs.DepthByBand[stats.BandNormal],
				qs.DepthByBand[stats.BandLow],
			)
			fmt.Println()

			procs, err := wire.SupervisorService().ListActive(ctx, false)
			if err != nil {
				return fmt.Errorf("failed to list workers: %w", err)
			}
			if len(procs) == 0 {
				fmt.Println("Workers: none")
			} else {
				fmt.Printf("Workers: %d live\n", len(procs))
				for _, p := range procs {
					line := fmt.Sprintf("  %d  %s  %s  %s", p.PID, p.Role, p.TaskID, formatAge(p.Age))
					if cfg.TaskTimeout() > 0 && p.Age > cfg.TaskTimeout() {
						line += color.New(color.FgHiRed).Sprint("  [over timeout]")
					}
					fmt.Println(line)
				}
			}
			fmt.Println()

			if cfg.TrunkPath != "" {
				flags, err := wire.CoordinatorService().Flags(ctx)
				if err != nil {
					return fmt.Errorf("failed to list merge flags: %w", err)
				}
				if len(flags) == 0 {
					fmt.Printf("Merges:  %s\n", color.New(color.FgHiGreen).Sprint("clean"))
				} else {
					fmt.Printf("Merges:  %s\n", color.New(color.FgHiRed).Sprintf("%d flagged for manual resolution", len(flags)))
					for _, f := range flags {
						fmt.Printf("  %s  %s  after %d attempt(s)\n", f.TaskKey, f.TaskID, f.Attempts)
					}
				}
				fmt.Println()
			}

			events, err := wire.EventRepository().ListRecent(ctx, 8)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			if len(events) > 0 {
				fmt.Println("Recent events:")
				dim := color.New(color.FgHiBlack)
				for _, e := range events {
					fmt.Printf("  %s  %s %s/%s %s\n",
						dim.Sprint(e.CreatedAt.Format("15:04:05")),
						e.Actor,
						e.EntityType,
						e.EntityID,
						e.Action,
					)
				}
			}
			return nil
		},
	}
}
