package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse"
	"github.com/Diomandeee/learnnko-sub000/pulse/checkpoint"
	"github.com/Diomandeee/learnnko-sub000/pulse/metrics"
	"github.com/Diomandeee/learnnko-sub000/pulse/orchestrator"
	"github.com/Diomandeee/learnnko-sub000/pulse/scheduler"
	"github.com/Diomandeee/learnnko-sub000/pulse/session"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// RunCmd runs the scheduler loop in the foreground
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Run the scheduler loop",
	Long: sym.Pulse + ` Run the scheduler loop in the foreground.

The loop waits for the schedule window, checks the budget, dispatches the
next unattempted job and checkpoints the result, until every job has been
attempted or the process is interrupted. On Ctrl+C or SIGTERM the in-flight
job finishes, the session ends and a final checkpoint is written.

Edits to the config file are picked up on the next cycle.

Examples:
  nkosched run                   # Run until the work is done
  nkosched run --dry-run         # Show the projected schedule, change nothing
  nkosched run --refresh-jobs    # Re-fetch the work source first
  nkosched run --reset           # Start over from an empty checkpoint`,
	RunE: runScheduler,
}

// AddRunFlags registers the run flags on cmd
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Print the projected schedule and exit without changing anything")
	cmd.Flags().Bool("reset", false, "Delete the checkpoint before starting")
	cmd.Flags().Bool("refresh-jobs", false, "Re-fetch the job list instead of using the cache")
}

func init() {
	AddRunFlags(RunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	reset, _ := cmd.Flags().GetBool("reset")
	refresh, _ := cmd.Flags().GetBool("refresh-jobs")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dryRun {
		return runDryRun(ctx, reset, refresh)
	}

	log := logger.ComponentLogger("pulse.scheduler")
	source, cfg, closeSource, err := openConfigSource(logger.ComponentLogger("am"))
	if err != nil {
		return err
	}
	defer closeSource()

	store := checkpointStore(cfg)
	if reset {
		if err := store.Reset(false); err != nil {
			return errors.MarkFatal(err)
		}
		pterm.Info.Printfln("Checkpoint %s removed", store.Path())
	}
	state, err := store.Load()
	if err != nil {
		return err
	}

	loader, _, _, err := jobLoader(cfg)
	if err != nil {
		return err
	}
	list, err := loader.Load(ctx, refresh)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return errors.WithHint(errors.NewFatalf("work source %s returned no jobs", cfg.WorkSource.Kind),
			"check work_source, or run with --refresh-jobs if the cached list is stale")
	}

	database, ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	orch, err := orchestrator.New(cfg.Orchestrator, logger.ComponentLogger("pulse.orchestrator"))
	if err != nil {
		return errors.MarkFatal(err)
	}

	sessionLog := logger.ComponentLogger("pulse.session")
	sessions := session.NewManager(
		session.NewTrigger(cfg.Training, sessionLog),
		sessionLog,
		session.WithRecorder(session.NewSQLRecorder(database)))

	s, err := scheduler.New(scheduler.Deps{
		Config:       source,
		Jobs:         list,
		Ledger:       ledger,
		Checkpoint:   store,
		State:        state,
		Sessions:     sessions,
		Orchestrator: orch,
		Progress:     pulse.NewLogEmitter(logger.ComponentLogger("pulse.progress")),
		Logger:       log,
	})
	if err != nil {
		return err
	}

	pusher, err := startMetrics(cfg.Metrics, s)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pusher.Stop(stopCtx)
	}()

	pterm.Info.Printfln("%s %d jobs, %d pending, %s between dispatches. Ctrl+C to stop.",
		sym.Pulse, len(list), s.Status().JobsPending, s.Status().Interval)
	return s.Run(ctx)
}

// startMetrics builds the configured sink and starts its push schedule.
// The sink choice is read once; changing it needs a restart.
func startMetrics(cfg am.MetricsConfig, s *scheduler.Scheduler) (*metrics.Pusher, error) {
	log := logger.ComponentLogger("pulse.metrics")
	sink, err := metrics.NewSink(cfg, log)
	if err != nil {
		return nil, errors.WithHint(errors.MarkFatal(err), "check the [metrics] section of the config file")
	}
	pusher, err := metrics.NewPusher(cfg.Schedule, sink, s.Snapshot, log)
	if err != nil {
		_ = sink.Close()
		return nil, errors.MarkFatal(err)
	}
	pusher.Start()
	return pusher, nil
}

// runDryRun prints the plan for the current config and state. Nothing is
// written: not the checkpoint, not the job cache, not the ledger.
func runDryRun(ctx context.Context, reset, refresh bool) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	state := checkpoint.NewState()
	if !reset {
		if state, err = checkpointStore(cfg).Load(); err != nil {
			return err
		}
	}

	loader, _, _, err := jobLoader(cfg)
	if err != nil {
		return err
	}
	list, err := loader.Preview(ctx, refresh)
	if err != nil {
		return err
	}

	plan, err := scheduler.BuildPlan(cfg, state, list, time.Now())
	if err != nil {
		return errors.MarkFatal(err)
	}
	if path == "" {
		path = "(defaults)"
	}
	return renderPlan(plan, cfg, path)
}

func renderPlan(p scheduler.Plan, cfg *am.Config, path string) error {
	pterm.DefaultHeader.WithFullWidth().Printfln("%s Dry run: %s", sym.Pulse, path)
	pterm.Println()

	budgetDays := "never"
	if p.DaysUntilBudgetExhausted >= 0 {
		budgetDays = fmt.Sprintf("%d active days", p.DaysUntilBudgetExhausted)
	}
	budgetJobs := "n/a (no cost estimate)"
	if p.EstimateUSD > 0 {
		budgetJobs = fmt.Sprintf("%d", p.BudgetJobsPerDay)
	}

	data := pterm.TableData{
		{"Item", "Value"},
		{"Pending jobs", fmt.Sprintf("%d", p.Pending)},
		{"Jobs per day", fmt.Sprintf("%d", p.JobsPerDay)},
		{"Interval", p.Interval.String()},
		{"Window", fmt.Sprintf("%s..%s, %02d:00-%02d:00 %s", cfg.Schedule.StartDate, cfg.Schedule.EndDate,
			cfg.Schedule.ActiveHours.Start, cfg.Schedule.ActiveHours.End, cfg.Schedule.Timezone)},
		{"First dispatch", formatTime(p.Start)},
		{"ETA", fmt.Sprintf("%d active days", p.ETADays)},
		{"Projected finish", formatDate(p.ProjectedFinish)},
		{"Estimate per job", fmt.Sprintf("$%.2f", p.EstimateUSD)},
		{"Projected cost", fmt.Sprintf("$%.2f", p.ProjectedCostUSD)},
		{"Spent so far", fmt.Sprintf("$%.2f of $%.2f", p.SpentUSD, cfg.Budget.MaxTotalUSD)},
		{"Daily ceiling pays for", budgetJobs},
		{"Total ceiling reached in", budgetDays},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Println()

	if !p.FitsWindow {
		pterm.Warning.Println("The schedule window closes before the pending work finishes")
	}
	if !p.TotalBudgetCoversAll {
		pterm.Warning.Println("The total ceiling does not cover the projected cost")
	}
	if p.EstimateUSD > 0 && p.BudgetJobsPerDay < p.JobsPerDay {
		pterm.Warning.Printfln("The daily ceiling allows about %d jobs, below the %d per day target", p.BudgetJobsPerDay, p.JobsPerDay)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("Mon 2006-01-02 15:04 MST")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "beyond the window"
	}
	return t.Format("Mon 2006-01-02")
}
