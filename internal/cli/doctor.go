package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	backlogadapter "github.com/example/foreman/internal/adapters/backlog"
	"github.com/example/foreman/internal/config"
	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/core/ownership"
	"github.com/example/foreman/internal/db"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the foreman environment",
		Long: `Comprehensive environment health check for foreman.

Validates:
- State directory and database
- Configuration, trunk repository, and backlog
- Worker commands and the disjointness oracle
- Write-ownership partition
- Tmux availability when tmux launching is enabled

Examples:
  foreman doctor              # Run full health check
  foreman doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := []CheckResult{}
			hasErrors := false

			results = append(results, checkStateDir())
			results = append(results, checkDatabase())

			cfg, cfgResult := checkConfig()
			results = append(results, cfgResult)

			results = append(results, checkTrunk(cfg))
			results = append(results, checkBacklog(cfg))
			results = append(results, checkWorkers(cfg))
			results = append(results, checkOracle(cfg))
			results = append(results, checkOwnership())
			results = append(results, checkTmux(cfg))

			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				// Print compact table
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, r.Status)
				}
				fmt.Println()

				// Print details for non-passing checks
				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found. Fix the failing checks before 'foreman run'.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

// checkStateDir validates that the state directory exists and is writable
func checkStateDir() CheckResult {
	stateDir, err := db.StateDir()
	if err != nil {
		return CheckResult{Name: "State dir", Status: "✗", Details: fmt.Sprintf("  %v", err)}
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return CheckResult{Name: "State dir", Status: "✗", Details: fmt.Sprintf("  Cannot create %s: %v", stateDir, err)}
	}

	probe := filepath.Join(stateDir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return CheckResult{Name: "State dir", Status: "✗", Details: fmt.Sprintf("  %s is not writable: %v", stateDir, err)}
	}
	os.Remove(probe)

	return CheckResult{Name: "State dir", Status: "✓"}
}

// checkDatabase validates that the database opens and has the schema
func checkDatabase() CheckResult {
	database, err := db.GetDB()
	if err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: fmt.Sprintf("  Cannot open database: %v", err)}
	}

	var count int
	err = database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tasks'").Scan(&count)
	if err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: fmt.Sprintf("  Cannot query database: %v", err)}
	}
	if count == 0 {
		return CheckResult{Name: "Database", Status: "✗", Details: "  Schema missing. Run 'foreman init'."}
	}

	return CheckResult{Name: "Database", Status: "✓"}
}

// checkConfig loads the config and reports whether it parsed cleanly. The
// loaded config feeds the downstream checks.
func checkConfig() (*config.Config, CheckResult) {
	stateDir, err := db.StateDir()
	if err != nil {
		return nil, CheckResult{Name: "Config", Status: "✗", Details: fmt.Sprintf("  %v", err)}
	}

	cfgPath := filepath.Join(stateDir, config.FileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, CheckResult{Name: "Config", Status: "⚠", Details: "  config.json not found; defaults in effect. Run 'foreman init'."}
	}

	cfg, err := config.Load(stateDir)
	if err != nil {
		return nil, CheckResult{Name: "Config", Status: "✗", Details: fmt.Sprintf("  %v", err)}
	}
	return cfg, CheckResult{Name: "Config", Status: "✓"}
}

// checkTrunk validates the managed trunk repository
func checkTrunk(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Trunk", Status: "⚠", Details: "  Skipped: config not loaded"}
	}
	if cfg.TrunkPath == "" {
		return CheckResult{Name: "Trunk", Status: "✗", Details: "  trunk_path is not set. Edit config.json."}
	}
	if _, err := os.Stat(cfg.TrunkPath); err != nil {
		return CheckResult{Name: "Trunk", Status: "✗", Details: fmt.Sprintf("  %s: %v", cfg.TrunkPath, err)}
	}
	if _, err := os.Stat(filepath.Join(cfg.TrunkPath, ".git")); err != nil {
		return CheckResult{Name: "Trunk", Status: "✗", Details: fmt.Sprintf("  %s is not a git repository; worker context isolation needs one", cfg.TrunkPath)}
	}
	return CheckResult{Name: "Trunk", Status: "✓"}
}

// checkBacklog validates that the backlog file is readable
func checkBacklog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Backlog", Status: "⚠", Details: "  Skipped: config not loaded"}
	}
	path := cfg.ResolvedBacklogPath()
	if path == "" {
		return CheckResult{Name: "Backlog", Status: "⚠", Details: "  No backlog path; set trunk_path or backlog_path"}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{Name: "Backlog", Status: "⚠", Details: fmt.Sprintf("  %s does not exist yet; the planner creates it", path)}
	}
	if _, err := backlogadapter.NewFileSource(path).Version(context.Background()); err != nil {
		return CheckResult{Name: "Backlog", Status: "✗", Details: fmt.Sprintf("  %s is not readable: %v", path, err)}
	}
	return CheckResult{Name: "Backlog", Status: "✓"}
}

// checkWorkers validates that every role's worker command resolves
func checkWorkers(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Workers", Status: "⚠", Details: "  Skipped: config not loaded"}
	}

	registry, err := dispatch.NewRegistry(cfg.WorkerCommands)
	if err != nil {
		return CheckResult{Name: "Workers", Status: "✗", Details: fmt.Sprintf("  %v", err)}
	}

	missing := []string{}
	for _, s := range registry.All() {
		if _, err := exec.LookPath(s.Command); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", s.Command, s.Role))
		}
	}
	if len(missing) > 0 {
		return CheckResult{Name: "Workers", Status: "✗", Details: "  Not on PATH: " + strings.Join(missing, ", ")}
	}
	return CheckResult{Name: "Workers", Status: "✓"}
}

// checkOracle validates the disjointness oracle command
func checkOracle(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Oracle", Status: "⚠", Details: "  Skipped: config not loaded"}
	}
	if cfg.OracleCommand == "" {
		return CheckResult{Name: "Oracle", Status: "⚠", Details: "  No oracle configured; batches run sequentially"}
	}

	fields := strings.Fields(cfg.OracleCommand)
	if _, err := exec.LookPath(fields[0]); err != nil {
		return CheckResult{Name: "Oracle", Status: "✗", Details: fmt.Sprintf("  %s not on PATH: %v", fields[0], err)}
	}
	return CheckResult{Name: "Oracle", Status: "✓"}
}

// checkOwnership validates that the ownership rules have no overlaps
func checkOwnership() CheckResult {
	overlaps := ownership.ValidateNoOverlaps(ownership.DefaultRules())
	if len(overlaps) > 0 {
		lines := make([]string, len(overlaps))
		for i, o := range overlaps {
			lines[i] = "  " + o.String()
		}
		return CheckResult{Name: "Ownership", Status: "✗", Details: strings.Join(lines, "\n")}
	}
	return CheckResult{Name: "Ownership", Status: "✓"}
}

// checkTmux validates tmux availability when tmux launching is enabled
func checkTmux(cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.UseTmux {
		return CheckResult{Name: "Tmux", Status: "✓"}
	}
	if _, err := exec.LookPath("tmux"); err != nil {
		return CheckResult{Name: "Tmux", Status: "✗", Details: "  use_tmux is enabled but tmux is not on PATH"}
	}
	return CheckResult{Name: "Tmux", Status: "✓"}
}
