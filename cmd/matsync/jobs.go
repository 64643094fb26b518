package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/jobs"
	"github.com/matsync/matsync/internal/linker"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/reconcile"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List this athlete's jobs on the queue service",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newAthleteDeps()
		if err != nil {
			return err
		}
		list, err := deps.client.Jobs(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			printStatus("Jobs", "none")
			return nil
		}
		for _, j := range list {
			printStatus(string(j.Status), "%s  %s", j.ID, j.QueryText)
		}
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check submitted jobs and save finished research",
	Long: `Check submitted jobs and save finished research.

One-shot by default; --watch keeps polling on the configured interval until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		deps, err := newAthleteDeps()
		if err != nil {
			return err
		}

		tracker := jobs.NewMemoryTracker()
		if err := seedTracker(cmd.Context(), deps, tracker); err != nil {
			return err
		}

		manager := jobs.NewManager(
			deps.client,
			tracker,
			&artifact.Writer{Store: deps.store},
			jobs.Options{Notifier: jobs.NotifierFunc(func(msg string) { printStep("%s", msg) })},
		)

		if !watch {
			report := manager.Poll(cmd.Context())
			printSuccess("Polled %d job(s): %d saved, %d failed", report.Polled, report.Materialized, report.Failed)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		interval := deps.cfg.PollInterval()
		fmt.Fprintf(os.Stderr, "polling every %s, ctrl-c to stop\n", interval)
		manager.Run(ctx, jobs.TickerScheduler{}, interval)
		return nil
	},
}

// seedTracker rebuilds the local tracking set from the service: every job
// not yet represented by an artifact in the vault and not already failed.
func seedTracker(ctx context.Context, deps *athleteDeps, tracker jobs.Tracker) error {
	list, err := deps.client.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	for _, j := range list {
		if j.Status == queue.StatusError {
			continue
		}
		if _, found, err := artifact.FindByJobID(deps.store, j.ID); err == nil && found {
			continue
		}
		tracker.Add(jobs.TrackedJob{
			ID:          j.ID,
			Query:       j.QueryText,
			SubmittedAt: j.CreatedAt,
			Status:      j.Status,
		})
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull completed research and concepts into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		repair, _ := cmd.Flags().GetBool("repair")

		deps, err := newAthleteDeps()
		if err != nil {
			return err
		}

		start := time.Now()
		sync := reconcile.NewAthleteSync(deps.client, deps.store, nil)
		report, err := sync.Pull(cmd.Context())
		if err != nil {
			printWarning("sync finished with errors: %v", err)
		}
		printSuccess("Sync: %s (%s)", report, time.Since(start).Round(time.Millisecond))

		if repair {
			l := linker.New(deps.store, nil)
			fixed, err := l.Repair()
			if err != nil {
				return fmt.Errorf("repairing lineage: %w", err)
			}
			printSuccess("Repair: %d source note(s) updated", fixed)
		}
		return nil
	},
}

func init() {
	pollCmd.Flags().Bool("watch", false, "keep polling until interrupted")
	syncCmd.Flags().Bool("repair", false, "re-derive source note status from derived notes")
}
