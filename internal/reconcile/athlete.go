// Package reconcile performs bulk, idempotent two-way synchronization between
// a party's vault and the queue service: athlete pulling coach completions,
// coach pulling athlete state. The core correctness mechanism is
// check-then-create against embedded markers: reconciliation can run
// repeatedly without ever duplicating artifacts. The one deliberate
// exception is the per-athlete summary, a derived view that is always
// fully regenerated.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// AthleteQueue is the slice of the queue client the athlete pull needs.
type AthleteQueue interface {
	Jobs(ctx context.Context) ([]queue.Job, error)
	Result(ctx context.Context, jobID string) (queue.Result, error)
	Concepts(ctx context.Context) ([]queue.Concept, error)
}

// Report aggregates what one reconciliation pass accomplished. Per-item
// failures are counted and logged, never fatal to the batch.
type Report struct {
	Created int
	Skipped int
	Failed  int
}

func (r Report) String() string {
	return fmt.Sprintf("%d created, %d already synced, %d failed", r.Created, r.Skipped, r.Failed)
}

// AthleteSync pulls completed research and pushed concepts into the
// athlete's vault.
type AthleteSync struct {
	queue  AthleteQueue
	store  vault.Store
	writer *artifact.Writer
	logger *slog.Logger
}

// NewAthleteSync wires an AthleteSync over one vault.
func NewAthleteSync(q AthleteQueue, store vault.Store, logger *slog.Logger) *AthleteSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &AthleteSync{
		queue:  q,
		store:  store,
		writer: &artifact.Writer{Store: store},
		logger: logger,
	}
}

// Pull materializes every completed job whose id is not yet embedded in any
// artifact, then creates any concept notes missing by name.
func (s *AthleteSync) Pull(ctx context.Context) (Report, error) {
	var report Report

	jobs, err := s.queue.Jobs(ctx)
	if err != nil {
		return report, fmt.Errorf("listing jobs: %w", err)
	}

	for _, j := range jobs {
		if j.Status != queue.StatusComplete {
			continue
		}
		created, err := s.pullJob(ctx, j)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warn("job reconcile failed", "job_id", j.ID, "error", err)
		case created:
			report.Created++
		default:
			report.Skipped++
		}
	}

	concepts, err := s.queue.Concepts(ctx)
	if err != nil {
		// Articles already landed; report the partial batch.
		s.logger.Warn("concept list fetch failed", "error", err)
		return report, fmt.Errorf("fetching concepts: %w", err)
	}
	for _, c := range concepts {
		created, err := s.writer.WriteConcept(c)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warn("concept reconcile failed", "name", c.Name, "error", err)
		case created:
			report.Created++
		default:
			report.Skipped++
		}
	}

	return report, nil
}

// pullJob creates the research artifact for one completed job unless an
// artifact already carries its id.
func (s *AthleteSync) pullJob(ctx context.Context, j queue.Job) (bool, error) {
	_, found, err := artifact.FindByJobID(s.store, j.ID)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	res, err := s.queue.Result(ctx, j.ID)
	if err != nil {
		return false, err
	}
	if res.Error != "" {
		// An errored job never materializes; nothing to recover here.
		return false, nil
	}

	if _, err := s.writer.WriteResearch(j.ID, j.QueryText, res); err != nil {
		return false, err
	}
	return true, nil
}
