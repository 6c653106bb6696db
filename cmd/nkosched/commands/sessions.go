package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/pulse/session"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// SessionsCmd lists session history from the ledger database
var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show session history",
	RunE:  runSessions,
}

func init() {
	SessionsCmd.Flags().Int("limit", 20, "Number of sessions to show")
}

func runSessions(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	database, _, err := openLedgerIfExists(cfg)
	if err != nil {
		return err
	}
	if database == nil {
		pterm.Info.Println("No sessions recorded yet")
		return nil
	}
	defer database.Close()

	records, err := session.NewSQLRecorder(database).List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		pterm.Info.Println("No sessions recorded yet")
		return nil
	}

	pterm.DefaultSection.Printfln("%s Sessions", sym.PulseOpen)
	data := pterm.TableData{{"Session", "Started", "Ended", "Jobs", "Cost", "Reason"}}
	for _, r := range records {
		ended, reason := "running or interrupted", r.EndReason
		if r.EndedAt != nil {
			ended = r.EndedAt.Local().Format("2006-01-02 15:04")
		}
		if reason == "" {
			reason = "-"
		}
		data = append(data, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			ended,
			fmt.Sprintf("%d", r.JobsProcessed),
			fmt.Sprintf("$%.2f", r.CostUSD),
			reason,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
