package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/core/backlog"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/wire"
)

// BatchCmd returns the batch command
func BatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Check and run parallel work batches",
		Long: `Coordinate implementable backlog items into parallel batches.

'check' asks the disjointness oracle whether the current implementables
may run together; 'run' dispatches them. Merge failures that exhaust
retries land in 'flags' and are cleared with 'clear' after a human
resolves the conflict.`,
	}

	cmd.AddCommand(batchCheckCmd())
	cmd.AddCommand(batchRunCmd())
	cmd.AddCommand(batchFlagsCmd())
	cmd.AddCommand(batchClearCmd())
	cmd.AddCommand(batchReconcileCmd())

	return cmd
}

func batchCheckCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether the current implementables may run in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			candidates, err := implementableCandidates(ctx, limit)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("No implementable items in the backlog.")
				return nil
			}

			verdict, err := wire.CoordinatorService().CheckIndependence(ctx, candidates)
			if err != nil {
				return fmt.Errorf("failed to check independence: %w", err)
			}

			fmt.Printf("Candidates: %d (oracle consulted %d time(s))\n", len(candidates), verdict.Consults)
			if !verdict.Valid {
				fmt.Printf("✗ Not batchable: %s\n", verdict.Reason)
				fmt.Println("The oldest item would dispatch alone.")
				return nil
			}

			fmt.Println("✓ Cleared for parallel execution:")
			for _, group := range verdict.Groups {
				fmt.Printf("  %s\n", strings.Join(group, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 3, "Maximum batch size")

	return cmd
}

func batchRunCmd() *cobra.Command {
	var limit, maxParallel int
	var autoMerge bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a batch of implementable items",
		Long: `Dispatch the current implementable items as one coordination attempt.

Independent items run in parallel, each in its own isolated context;
dependent ones fall back to sequential processing of the same set. With
--auto-merge the command waits for the workers and merges their contexts
back one at a time before returning.

Examples:
  foreman batch run
  foreman batch run --auto-merge --max-parallel 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if maxParallel <= 0 {
				maxParallel = wire.Config().MaxParallel
			}

			candidates, err := implementableCandidates(ctx, limit)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("No implementable items in the backlog.")
				return nil
			}

			result, err := wire.CoordinatorService().ExecuteBatch(ctx, primary.ExecuteBatchRequest{
				Candidates:  candidates,
				MaxParallel: maxParallel,
				AutoMerge:   autoMerge,
			})
			if err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}

			fmt.Printf("Batch %s (%s, %dms)\n", result.BatchID, result.Mode, result.DurationMs)

			if len(result.Dispatched) == 0 {
				fmt.Println("Nothing dispatched.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTASK\tPID\tCONTEXT")
			fmt.Fprintln(w, "---\t----\t---\t-------")
			for _, d := range result.Dispatched {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Key, d.TaskID, d.PID, d.ContextPath)
			}
			w.Flush()

			for _, m := range result.MergeResults {
				switch {
				case m.Merged:
					fmt.Printf("✓ Merged %s after %d attempt(s)\n", m.Key, m.Attempts)
				case m.Flagged:
					fmt.Printf("✗ Flagged %s for manual resolution: %s\n", m.Key, m.Error)
				default:
					fmt.Printf("✗ %s: %s\n", m.Key, m.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 3, "Maximum batch size")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Concurrent worker cap (0 uses the configured maximum)")
	cmd.Flags().BoolVar(&autoMerge, "auto-merge", false, "Wait for workers and merge their contexts before returning")

	return cmd
}

func batchFlagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List merge failures awaiting manual resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			flags, err := wire.CoordinatorService().Flags(ctx)
			if err != nil {
				return fmt.Errorf("failed to list merge flags: %w", err)
			}

			if len(flags) == 0 {
				fmt.Println("No merge flags. Automatic reconciliation is healthy.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTASK\tATTEMPTS\tFLAGGED\tREASON")
			fmt.Fprintln(w, "---\t----\t--------\t-------\t------")
			for _, f := range flags {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					f.TaskKey,
					f.TaskID,
					f.Attempts,
					f.FlaggedAt,
					f.Reason,
				)
			}
			w.Flush()

			fmt.Println()
			fmt.Println("Resolve the conflict in the listed context, then:")
			fmt.Println("  foreman batch clear <key>")
			return nil
		},
	}
}

func batchClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [task-key]",
		Short: "Clear a merge flag and release its context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := wire.CoordinatorService().ClearFlag(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to clear flag: %w", err)
			}

			fmt.Printf("✓ Cleared %s; the item is eligible for batching again\n", args[0])
			return nil
		},
	}
}

func batchReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [pid]",
		Short: "Merge one finished worker's context into the trunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			result, err := wire.CoordinatorService().Reconcile(ctx, pid)
			if err != nil {
				return fmt.Errorf("failed to reconcile: %w", err)
			}

			switch {
			case result.Merged:
				fmt.Printf("✓ Merged %s after %d attempt(s)\n", result.Key, result.Attempts)
			case result.Flagged:
				fmt.Printf("✗ Flagged %s for manual resolution: %s\n", result.Key, result.Error)
			default:
				fmt.Printf("✗ %s: %s\n", result.Key, result.Error)
			}
			return nil
		},
	}
}

// implementableCandidates builds batch candidates from the backlog items
// ready to implement, skipping any key already flagged for manual merge
// resolution.
func implementableCandidates(ctx context.Context, limit int) ([]primary.BatchCandidate, error) {
	raw, err := wire.BacklogSource().GetAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog: %w", err)
	}

	flags, err := wire.CoordinatorService().Flags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge flags: %w", err)
	}
	flagged := make(map[string]bool, len(flags))
	for _, f := range flags {
		flagged[f.TaskKey] = true
	}

	var candidates []primary.BatchCandidate
	for _, item := range backlog.Implementables(coreItems(raw)) {
		key := fmt.Sprintf("impl-%d", item.Number)
		if flagged[key] {
			continue
		}
		candidates = append(candidates, primary.BatchCandidate{
			Key:        key,
			ItemNumber: item.Number,
			Title:      item.Title,
		})
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}
