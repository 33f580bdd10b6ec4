package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/ports/secondary"
	"github.com/example/foreman/internal/wire"
)

// EventsCmd returns the events command
func EventsCmd() *cobra.Command {
	var limit int
	var entityType, entityID string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the audit trail",
		Long: `List audit events, newest first.

Every state change the services make lands here: enqueues, spawns,
kills, merges, flags. Filter to one entity to reconstruct its history.

Examples:
  foreman events
  foreman events --limit 50
  foreman events --type task --id TASK-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var (
				events []*secondary.EventRecord
				err    error
			)
			if entityType != "" || entityID != "" {
				if entityType == "" || entityID == "" {
					return fmt.Errorf("--type and --id must be used together")
				}
				events, err = wire.EventRepository().ListForEntity(ctx, entityType, entityID, limit)
			} else {
				events, err = wire.EventRepository().ListRecent(ctx, limit)
			}
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if len(events) == 0 {
				fmt.Println("No events recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTOR\tENTITY\tACTION\tDETAIL")
			fmt.Fprintln(w, "----\t-----\t------\t------\t------")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Actor,
					e.EntityType,
					e.EntityID,
					e.Action,
					e.Detail,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	cmd.Flags().StringVar(&entityType, "type", "", "Filter by entity type (task|process|batch|merge_flag)")
	cmd.Flags().StringVar(&entityID, "id", "", "Filter by entity ID (requires --type)")

	return cmd
}
