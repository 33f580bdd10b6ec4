package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/core/backlog"
	"github.com/example/foreman/internal/ports/secondary"
	"github.com/example/foreman/internal/wire"
)

// BacklogCmd returns the backlog command
func BacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "View the work item backlog",
		Long: `Read-only view of the backlog. The planner role owns the content;
foreman only reads it to decide what to dispatch next.`,
	}

	cmd.AddCommand(backlogListCmd())

	return cmd
}

func backlogListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backlog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			raw, err := wire.BacklogSource().GetAllItems(ctx)
			if err != nil {
				return fmt.Errorf("failed to read backlog: %w", err)
			}

			items := coreItems(raw)
			counts := backlog.CountByStatus(items)
			fmt.Printf("%d item(s): %d planned, %d in progress, %d blocked, %d complete\n",
				len(items),
				counts[backlog.StatusPlanned],
				counts[backlog.StatusInProgress],
				counts[backlog.StatusBlocked],
				counts[backlog.StatusComplete],
			)
			fmt.Printf("%d awaiting specs, %d ready to implement\n",
				len(backlog.MissingSpecs(items)),
				len(backlog.Implementables(items)),
			)

			if len(items) == 0 {
				return nil
			}
			fmt.Println()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ITEM\tTITLE\tSTATUS\tSPEC")
			fmt.Fprintln(w, "----\t-----\t------\t----")
			for _, item := range items {
				if status != "" && item.Status != status {
					continue
				}
				spec := ""
				if item.HasSpec {
					spec = "✓"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", item.Number, item.Title, item.Status, spec)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (planned|in_progress|blocked|complete)")

	return cmd
}

// coreItems converts backlog items from the source port into the core type.
func coreItems(raw []secondary.BacklogItem) []backlog.Item {
	items := make([]backlog.Item, len(raw))
	for i, it := range raw {
		items[i] = backlog.Item{
			Number:  it.Number,
			Title:   it.Title,
			Status:  it.Status,
			HasSpec: it.HasSpec,
		}
	}
	return items
}
