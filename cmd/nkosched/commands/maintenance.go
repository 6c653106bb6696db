package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/pulse/scheduler"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// RetryFailedCmd requeues failed jobs
var RetryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Requeue jobs that failed",
	Long: `Clear the failure records in the checkpoint so failed jobs are dispatched
again, in their original order, on the next run.

Stop the scheduler first: a running scheduler overwrites the checkpoint with
its own view on the next save.`,
	RunE: runRetryFailed,
}

// ResetCmd deletes persisted progress
var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the checkpoint",
	Long: `Delete the checkpoint so the next run starts from the first job.

Rotating backups are kept unless --all is given. The job cache is kept unless
--jobs is given. The spend ledger is never touched: money spent stays spent.`,
	RunE: runReset,
}

func init() {
	ResetCmd.Flags().Bool("all", false, "Also delete checkpoint backups")
	ResetCmd.Flags().Bool("jobs", false, "Also delete the cached job list")
}

func runRetryFailed(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ids, err := scheduler.RetryFailed(checkpointStore(cfg))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		pterm.Info.Println("No failed jobs to retry")
		return nil
	}
	pterm.Success.Printfln("%s %d failed jobs requeued", sym.Pulse, len(ids))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	withJobs, _ := cmd.Flags().GetBool("jobs")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store := checkpointStore(cfg)
	if err := store.Reset(all); err != nil {
		return errors.Wrap(err, "reset checkpoint")
	}
	pterm.Success.Printfln("%s Checkpoint %s removed", sym.PulseClose, store.Path())

	if withJobs {
		_, src, cache, err := jobLoader(cfg)
		if err != nil {
			return err
		}
		if err := cache.Remove(src.Identity()); err != nil {
			return err
		}
		pterm.Success.Printfln("%s Job cache %s removed", sym.IX, cache.Path(src.Identity()))
	}
	return nil
}
