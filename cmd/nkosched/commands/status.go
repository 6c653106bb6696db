package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
	"github.com/Diomandeee/learnnko-sub000/pulse/scheduler"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// StatusCmd reports progress from the persisted state
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress, spend and ETA",
	Long: `Show progress, spend and ETA from the checkpoint, the ledger and the
cached job list. Nothing is written; a running scheduler is unaffected.

Examples:
  nkosched status          # Table output
  nkosched status --json   # Machine-readable report`,
	RunE: runStatus,
}

func init() {
	StatusCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := checkpointStore(cfg).Load()
	if err != nil {
		return err
	}

	var list []jobs.Job
	loader, _, _, err := jobLoader(cfg)
	if err == nil {
		list, err = loader.Preview(cmd.Context(), false)
	}
	if err != nil {
		logger.Logger.Warnw("Job list unavailable, pending counts are unknown", logger.FieldError, err)
	}

	database, ledger, err := openLedgerIfExists(cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	r, err := scheduler.BuildReport(scheduler.ReportInput{
		Config: cfg,
		State:  state,
		Jobs:   list,
		Ledger: ledger,
		Now:    time.Now(),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	return renderReport(r, list != nil)
}

func renderReport(r scheduler.Report, haveJobs bool) error {
	pterm.DefaultSection.Printfln("%s nkosched status", sym.Pulse)

	jobsLine := fmt.Sprintf("%d processed, %d failed", r.JobsProcessed, r.JobsFailed)
	if haveJobs {
		jobsLine = fmt.Sprintf("%d total, %s, %d pending", r.JobsTotal, jobsLine, r.JobsPending)
	}
	window := "no"
	if r.InWindow {
		window = "yes"
	}
	session := r.SessionID
	if session == "" {
		session = "-"
	}

	data := pterm.TableData{
		{"Item", "Value"},
		{"Jobs", jobsLine},
		{"Spend today", fmt.Sprintf("$%.2f of $%.2f ($%.2f left)", r.Budget.DailySpent, r.Budget.DailyLimit, r.Budget.DailyRemaining)},
		{"Spend total", fmt.Sprintf("$%.2f of $%.2f ($%.2f left)", r.Budget.TotalSpent, r.Budget.TotalLimit, r.Budget.TotalRemaining)},
		{"Estimate per job", fmt.Sprintf("$%.2f", r.EstimateUSD)},
		{"In window", window},
		{"Next opening", formatTime(r.NextOpening)},
		{"Interval", r.Interval.String()},
		{"Session", session},
		{"Last checkpoint", formatTime(r.LastCheckpoint)},
	}
	if haveJobs {
		data = append(data,
			[]string{"ETA", fmt.Sprintf("%d active days", r.ETADays)},
			[]string{"Projected finish", formatDate(r.ProjectedFinish)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if len(r.RecentFailures) > 0 {
		pterm.Println()
		pterm.Warning.Printfln("%d failed jobs (most recent last); `nkosched retry-failed` requeues them", r.JobsFailed)
		failures := pterm.TableData{{"Job", "When", "Error"}}
		for _, f := range r.RecentFailures {
			failures = append(failures, []string{f.JobID, f.Timestamp.Local().Format("2006-01-02 15:04"), f.Error})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(failures).Render()
	}
	return nil
}
