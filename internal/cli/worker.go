package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// WorkerCmd returns the worker command
func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect and manage supervised worker processes",
		Long:  `List live workers, find hung ones, and kill or finalize them.`,
	}

	cmd.AddCommand(workerListCmd())
	cmd.AddCommand(workerHungCmd())
	cmd.AddCommand(workerKillCmd())
	cmd.AddCommand(workerCleanupCmd())

	return cmd
}

func workerListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			procs, err := wire.SupervisorService().ListActive(ctx, all)
			if err != nil {
				return fmt.Errorf("failed to list workers: %w", err)
			}

			if len(procs) == 0 {
				fmt.Println("No workers found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tROLE\tTASK\tKIND\tSTATUS\tAGE")
			fmt.Fprintln(w, "---\t----\t----\t----\t------\t---")
			for _, p := range procs {
				age := ""
				if p.Age > 0 {
					age = formatAge(p.Age)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					p.PID,
					p.Role,
					p.TaskID,
					p.Kind,
					p.Status,
					age,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include recently finished workers")

	return cmd
}

func workerHungCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "hung",
		Short: "List workers running longer than the hang timeout",
		Long: `List live workers older than the hang timeout.

Nothing is terminated. Inspect the worker first, then pair this with
'foreman worker kill' if it is genuinely stuck.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if timeout <= 0 {
				timeout = wire.Config().TaskTimeout()
			}
			procs, err := wire.SupervisorService().DetectHung(ctx, timeout)
			if err != nil {
				return fmt.Errorf("failed to detect hung workers: %w", err)
			}

			if len(procs) == 0 {
				fmt.Printf("No workers running longer than %s.\n", timeout)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tROLE\tTASK\tAGE\tCONTEXT")
			fmt.Fprintln(w, "---\t----\t----\t---\t-------")
			for _, p := range procs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					p.PID,
					p.Role,
					p.TaskID,
					formatAge(p.Age),
					p.ContextPath,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Hang threshold (0 uses the configured task timeout)")

	return cmd
}

func workerKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill [pid]",
		Short: "Forcibly terminate a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			if err := wire.SupervisorService().Kill(ctx, pid); err != nil {
				return fmt.Errorf("failed to kill worker: %w", err)
			}

			fmt.Printf("✓ Killed worker %d\n", pid)
			return nil
		},
	}
}

func workerCleanupCmd() *cobra.Command {
	var release bool

	cmd := &cobra.Command{
		Use:   "cleanup [pid]",
		Short: "Finalize a finished worker's record",
		Long: `Finalize a finished worker's record and optionally release its
isolated context. Refuses to touch a live worker; kill it first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			if err := wire.SupervisorService().Cleanup(ctx, pid, release); err != nil {
				return fmt.Errorf("failed to clean up worker: %w", err)
			}

			fmt.Printf("✓ Cleaned up worker %d\n", pid)
			return nil
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "Also release the worker's isolated context")

	return cmd
}

// formatAge renders a duration in its largest sensible unit.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
