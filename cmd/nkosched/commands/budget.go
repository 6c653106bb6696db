package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/util"
	"github.com/Diomandeee/learnnko-sub000/pulse/budget"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// BudgetCmd shows and edits spend ceilings
var BudgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show or change spend ceilings",
	Long: `Show spend per day from the ledger against the configured ceilings.

Examples:
  nkosched budget                          # Spend per day
  nkosched budget set --daily 8            # Raise the daily ceiling
  nkosched budget set --pause-on-exceeded=false`,
	RunE: runBudgetShow,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change spend ceilings in the config file",
	Long: `Write new ceilings into the [budget] table of the TOML config file.
The previous file is kept as .back1. A running scheduler applies the change
on its next cycle; raising a ceiling ends a budget pause.`,
	RunE: runBudgetSet,
}

func init() {
	budgetSetCmd.Flags().Float64("daily", 0, "Daily ceiling in USD")
	budgetSetCmd.Flags().Float64("total", 0, "Total ceiling in USD")
	budgetSetCmd.Flags().Bool("pause-on-exceeded", true, "Pause instead of stopping when a ceiling is reached")
	BudgetCmd.AddCommand(budgetSetCmd)
}

func runBudgetShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	database, ledger, err := openLedgerIfExists(cfg)
	if err != nil {
		return err
	}
	if database == nil {
		pterm.Info.Printfln("No spend recorded yet (ceilings: $%.2f/day, $%.2f total)",
			cfg.Budget.MaxDailyUSD, cfg.Budget.MaxTotalUSD)
		return nil
	}
	defer database.Close()

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}
	st := ledger.Status(budget.DateKey(time.Now().In(loc)), cfg.Budget)

	pterm.DefaultSection.Printfln("%s Budget", sym.DB)
	data := pterm.TableData{{"Date", "Spent", "Ceiling", "Completed", "Failed"}}
	for _, d := range ledger.Days() {
		data = append(data, []string{
			d.Date,
			fmt.Sprintf("$%.2f", d.Spent),
			fmt.Sprintf("$%.2f", d.Ceiling),
			fmt.Sprintf("%d", d.JobsCompleted),
			fmt.Sprintf("%d", d.JobsFailed),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Println()
	pterm.Info.Printfln("Today $%.2f of $%.2f, total $%.2f of $%.2f",
		st.DailySpent, st.DailyLimit, st.TotalSpent, st.TotalLimit)
	return nil
}

func runBudgetSet(cmd *cobra.Command, args []string) error {
	path := am.ResolveConfigPath(ConfigPath)
	if path == "" {
		return errors.WithHint(errors.New("no config file to edit"),
			"pass --config or create nkosched.toml")
	}

	var update am.BudgetUpdate
	if cmd.Flags().Changed("daily") {
		v, _ := cmd.Flags().GetFloat64("daily")
		update.MaxDailyUSD = util.Ptr(v)
	}
	if cmd.Flags().Changed("total") {
		v, _ := cmd.Flags().GetFloat64("total")
		update.MaxTotalUSD = util.Ptr(v)
	}
	if cmd.Flags().Changed("pause-on-exceeded") {
		v, _ := cmd.Flags().GetBool("pause-on-exceeded")
		update.PauseOnExceeded = util.Ptr(v)
	}
	if update == (am.BudgetUpdate{}) {
		return errors.WithHint(errors.New("nothing to change"),
			"give at least one of --daily, --total, --pause-on-exceeded")
	}

	if err := am.UpdateBudget(path, update, nil); err != nil {
		return err
	}
	// re-read so a bad edit is reported now rather than by the running loop
	if _, err := am.LoadFromFile(path); err != nil {
		return errors.WithHint(err, "restore "+path+".back1 to undo")
	}
	pterm.Success.Printfln("%s Budget updated in %s", sym.AM, path)
	return nil
}
