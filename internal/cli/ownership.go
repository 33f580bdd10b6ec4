package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/wire"
)

// OwnershipCmd returns the ownership command
func OwnershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ownership",
		Short: "Audit the write-ownership partition",
		Long: `Show which role owns which path prefix and check individual writes.

The partition is static: every role writes only inside its owned
prefixes, which is what makes parallel workers safe without locks.`,
	}

	cmd.AddCommand(ownershipListCmd())
	cmd.AddCommand(ownershipCheckCmd())

	return cmd
}

func ownershipListCmd() *cobra.Command {
	var mirror bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ownership rules and shared writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := wire.OwnershipTable()

			if mirror {
				data, err := table.MirrorYAML()
				if err != nil {
					return fmt.Errorf("failed to render mirror: %w", err)
				}
				os.Stdout.Write(data)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tOWNERS")
			fmt.Fprintln(w, "------\t------")
			for _, rule := range table.Rules() {
				fmt.Fprintf(w, "%s\t%s\n", rule.PathPrefix, strings.Join(rule.Owners, ", "))
			}
			w.Flush()

			shared := table.SharedWrites()
			if len(shared) > 0 {
				paths := make([]string, 0, len(shared))
				for p := range shared {
					paths = append(paths, p)
				}
				sort.Strings(paths)

				fmt.Println()
				fmt.Println("Shared writes:")
				for _, p := range paths {
					fmt.Printf("  %s: %s\n", p, strings.Join(shared[p], ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&mirror, "mirror", false, "Print the YAML audit mirror instead of a table")

	return cmd
}

func ownershipCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [role] [path]",
		Short: "Check whether a role may write a path",
		Long: `Evaluate one write against the ownership partition.

Examples:
  foreman ownership check builder src/parser.go
  foreman ownership check architect STATUS.md`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, path := args[0], args[1]
			decision := wire.OwnershipTable().Check(role, path)

			if !decision.Allowed {
				if decision.Matched != "" {
					return fmt.Errorf("%s may not write %s (owned via %s)", role, path, decision.Matched)
				}
				return fmt.Errorf("%s may not write %s (no rule covers it)", role, path)
			}

			if decision.Warning != "" {
				fmt.Printf("⚠ %s may write %s\n  %s\n", role, path, decision.Warning)
				return nil
			}
			fmt.Printf("✓ %s may write %s (rule %s)\n", role, path, decision.Matched)
			return nil
		},
	}
}
