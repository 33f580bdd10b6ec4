package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/core/stats"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/wire"
)

// QueueCmd returns the queue command
func QueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the durable task queue",
		Long:  `List, inspect, enqueue, and clean up tasks in the durable queue.`,
	}

	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueShowCmd())
	cmd.AddCommand(queueAddCmd())
	cmd.AddCommand(queueStatsCmd())
	cmd.AddCommand(queueCleanupCmd())

	return cmd
}

func queueListCmd() *cobra.Command {
	var recipient, status, kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			tasks, err := wire.QueueService().ListTasks(ctx, primary.TaskFilters{
				Recipient: recipient,
				Status:    status,
				Kind:      kind,
				Limit:     limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRECIPIENT\tKIND\tPRI\tSTATUS\tCREATED")
			fmt.Fprintln(w, "--\t---------\t----\t---\t------\t-------")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					t.ID,
					t.Recipient,
					t.Kind,
					t.Priority,
					t.Status,
					t.CreatedAt,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&recipient, "recipient", "r", "", "Filter by recipient role")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (queued|running|completed|failed)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by kind (spec|implement|replan)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of tasks to show")

	return cmd
}

func queueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			task, err := wire.QueueService().GetTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("task not found: %w", err)
			}

			fmt.Printf("Task: %s\n", task.ID)
			fmt.Printf("Sender: %s\n", task.Sender)
			fmt.Printf("Recipient: %s\n", task.Recipient)
			fmt.Printf("Kind: %s\n", task.Kind)
			fmt.Printf("Priority: %d (%s)\n", task.Priority, stats.Band(task.Priority))
			fmt.Printf("Status: %s\n", task.Status)
			fmt.Printf("Created: %s\n", task.CreatedAt)
			if task.StartedAt != "" {
				fmt.Printf("Started: %s\n", task.StartedAt)
			}
			if task.CompletedAt != "" {
				fmt.Printf("Completed: %s (%dms)\n", task.CompletedAt, task.DurationMs)
			}
			if task.Error != "" {
				fmt.Printf("Error: %s\n", task.Error)
			}
			if task.Payload != "" {
				fmt.Printf("Payload: %s\n", task.Payload)
			}
			return nil
		},
	}
}

func queueAddCmd() *cobra.Command {
	var sender, kind, payload string
	var priority int

	cmd := &cobra.Command{
		Use:   "add [recipient]",
		Short: "Enqueue a task by hand",
		Long: `Enqueue a task for a worker role, bypassing the backlog.

Examples:
  foreman queue add builder --kind implement --payload '{"item": 12}'
  foreman queue add planner --kind replan --priority 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			task, err := wire.QueueService().Enqueue(ctx, primary.EnqueueRequest{
				Sender:    sender,
				Recipient: args[0],
				Kind:      kind,
				Priority:  priority,
				Payload:   payload,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue task: %w", err)
			}

			fmt.Printf("✓ Enqueued %s for %s (kind %s, priority %d)\n",
				task.ID, task.Recipient, task.Kind, task.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "cli", "Sender recorded on the task")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Task kind (spec|implement|replan)")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority 1-10, lower is more urgent (0 uses the kind default)")
	cmd.Flags().StringVar(&payload, "payload", "", "Opaque payload handed to the worker")
	cmd.MarkFlagRequired("kind")

	return cmd
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and per-role performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			qs, err := wire.QueueService().Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get queue stats: %w", err)
			}

			fmt.Println("Depth by band:")
			for _, band := range stats.Bands() {
				fmt.Printf("  %-7s %d\n", band, qs.DepthByBand[band])
			}
			fmt.Println()

			if len(qs.Roles) == 0 {
				fmt.Println("No completed work yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tCOMPLETED\tFAILED\tRUNNING\tAVG\tP50\tP95")
			fmt.Fprintln(w, "----\t---------\t------\t-------\t---\t---\t---")
			for _, r := range qs.Roles {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0fms\t%.0fms\t%.0fms\n",
					r.Role,
					r.Completed,
					r.Failed,
					r.Running,
					r.AvgMs,
					r.P50Ms,
					r.P95Ms,
				)
			}
			w.Flush()

			if len(qs.Slowest) > 0 {
				fmt.Println()
				fmt.Println("Slowest completed tasks:")
				for _, s := range qs.Slowest {
					fmt.Printf("  %s  %s/%s  %dms\n", s.TaskID, s.Recipient, s.Kind, s.DurationMs)
				}
			}
			return nil
		},
	}
}

func queueCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed and failed tasks past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if days <= 0 {
				days = wire.Config().RetentionDays
			}
			removed, err := wire.QueueService().Cleanup(ctx, days)
			if err != nil {
				return fmt.Errorf("failed to clean up tasks: %w", err)
			}

			fmt.Printf("✓ Removed %d task(s) older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (0 uses the configured retention)")

	return cmd
}
