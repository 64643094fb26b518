package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// CoachAPI is the slice of the coach client the coach pull needs.
type CoachAPI interface {
	Roster(ctx context.Context) ([]queue.Athlete, error)
	AthleteGraph(ctx context.Context, athleteID string) (queue.GraphSnapshot, error)
	Pending(ctx context.Context) ([]queue.Job, error)
}

// CoachSync pulls athlete state into the coach's vault: one regenerated
// summary per roster athlete, plus a pending-query note per unseen job.
type CoachSync struct {
	coach  CoachAPI
	store  vault.Store
	writer *artifact.Writer
	logger *slog.Logger
}

// NewCoachSync wires a CoachSync over the coach's vault.
func NewCoachSync(c CoachAPI, store vault.Store, logger *slog.Logger) *CoachSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoachSync{
		coach:  c,
		store:  store,
		writer: &artifact.Writer{Store: store},
		logger: logger,
	}
}

// Pull regenerates every athlete summary (a full overwrite, it is a derived
// view, not a source of truth) and creates pending-query notes for jobs not
// yet represented in the vault. Failure on one athlete or one job is skipped,
// never fatal to the batch.
func (s *CoachSync) Pull(ctx context.Context) (Report, error) {
	var report Report
	var mu sync.Mutex

	roster, err := s.coach.Roster(ctx)
	if err != nil {
		return report, fmt.Errorf("fetching roster: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range roster {
		a := a
		g.Go(func() error {
			snap, err := s.coach.AthleteGraph(gctx, a.DiscordID)
			if err == nil {
				_, err = s.writer.WriteSummary(a, snap)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.logger.Warn("athlete summary failed", "athlete", a.DiscordID, "error", err)
				return nil
			}
			report.Created++
			return nil
		})
	}
	g.Wait()

	pending, err := s.coach.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("listing pending jobs: %w", err)
	}
	for _, j := range pending {
		created, err := s.pullPending(j)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warn("pending job reconcile failed", "job_id", j.ID, "error", err)
		case created:
			report.Created++
		default:
			report.Skipped++
		}
	}

	return report, nil
}

func (s *CoachSync) pullPending(j queue.Job) (bool, error) {
	_, found, err := artifact.FindByJobID(s.store, j.ID)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if _, err := s.writer.WritePending(j.ID, j.QueryText); err != nil {
		return false, err
	}
	return true, nil
}
