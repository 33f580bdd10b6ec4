package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/cli"
	"github.com/example/foreman/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "foreman",
		Short:   "Foreman - autonomous work orchestration",
		Version: version.String(),
		Long: `Foreman runs an autonomous work loop over a backlog of items:
it keeps specs flowing, dispatches independent implementation work to
parallel workers in isolated contexts, and serializes every merge back
into the trunk.`,
	}

	// Add subcommands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StopCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.DashboardCmd())
	rootCmd.AddCommand(cli.QueueCmd())
	rootCmd.AddCommand(cli.WorkerCmd())
	rootCmd.AddCommand(cli.BatchCmd())
	rootCmd.AddCommand(cli.OwnershipCmd())
	rootCmd.AddCommand(cli.BacklogCmd())
	rootCmd.AddCommand(cli.EventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
