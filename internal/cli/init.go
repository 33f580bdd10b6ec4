package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/foreman/internal/config"
	"github.com/example/foreman/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the foreman state directory",
		Long: `Create the state directory, the database schema, and a default
config.json. Safe to run repeatedly; existing config and data are left
untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := db.StateDir()
			if err != nil {
				return fmt.Errorf("failed to resolve state directory: %w", err)
			}

			fmt.Printf("Initializing foreman state in %s\n", stateDir)

			if err := db.InitSchema(); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
			fmt.Println("✓ Database initialized")

			cfgPath := filepath.Join(stateDir, config.FileName)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := config.Save(stateDir, config.DefaultConfig()); err != nil {
					return fmt.Errorf("failed to write default config: %w", err)
				}
				fmt.Printf("✓ Default config written to %s\n", cfgPath)
			} else {
				fmt.Printf("✓ Config already present at %s\n", cfgPath)
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  1. Edit config.json and set trunk_path to your managed repository")
			fmt.Println("  2. foreman doctor")
			fmt.Println("  3. foreman run")

			return nil
		},
	}
}
