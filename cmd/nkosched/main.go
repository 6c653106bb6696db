package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/cmd/nkosched/commands"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

var rootCmd = &cobra.Command{
	Use:   "nkosched",
	Short: sym.Pulse + " nkosched - continuous, budget-aware job scheduler",
	Long: sym.Pulse + ` nkosched - continuous, budget-aware job scheduler.

Dispatches a fixed list of jobs to an external orchestrator, one at a time,
paced to a daily rate, inside a calendar window, under daily and total spend
ceilings. Progress is checkpointed so the run survives restarts.

Available commands:
  run          - Run the scheduler loop (default)
  status       - Show progress, spend and ETA
  retry-failed - Requeue jobs that failed
  reset        - Delete the checkpoint (and optionally the job cache)
  budget       - Show or change spend ceilings
  sessions     - Show session history
  config       - Show and validate configuration
  version      - Show build information

Examples:
  nkosched --config nkosched.toml            # Run until the work is done
  nkosched run --dry-run                     # Show the projected schedule
  nkosched status                            # Where are we at
  nkosched budget set --daily 8 --total 200  # Raise the ceilings of a running scheduler`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if jsonLogs {
			return logger.Initialize(true, verbosity)
		}
		return logger.InitializeForService(verbosity)
	},
	RunE: commands.RunCmd.RunE,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "Config file (default $NKO_CONFIG or ./nkosched.toml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	// bare `nkosched` behaves like `nkosched run`
	commands.AddRunFlags(rootCmd)

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.RetryFailedCmd)
	rootCmd.AddCommand(commands.ResetCmd)
	rootCmd.AddCommand(commands.BudgetCmd)
	rootCmd.AddCommand(commands.SessionsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	if errors.IsFatal(err) {
		os.Exit(2)
	}
	os.Exit(1)
}
