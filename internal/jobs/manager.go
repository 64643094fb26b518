// Package jobs owns the athlete-side job lifecycle: submission, polling for
// status transitions, and terminal-state side effects.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matsync/matsync/internal/queue"
)

// ErrSubmissionFailed indicates the queue service was unreachable or rejected
// the submit; no job is tracked and no pending artifact is written.
var ErrSubmissionFailed = errors.New("submission failed")

// QueueAPI is the slice of the queue client the manager uses.
type QueueAPI interface {
	Submit(ctx context.Context, queryText, therapyContext string) (string, error)
	Status(ctx context.Context, jobID string) (queue.StatusInfo, error)
	Result(ctx context.Context, jobID string) (queue.Result, error)
}

// Materializer turns a completed result into durable artifacts.
type Materializer interface {
	WritePending(jobID, query string) (string, error)
	WriteResearch(jobID, query string, res queue.Result) (string, error)
}

// Notifier surfaces user-visible events. Messages are short and actionable;
// full detail goes to the logger.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Manager drives tracked jobs to completion via polling.
type Manager struct {
	queue   QueueAPI
	tracker Tracker
	mat     Materializer
	notify  Notifier
	logger  *slog.Logger
	now     func() time.Time
}

// Options carries optional Manager dependencies.
type Options struct {
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewManager wires a Manager. Tracker and Materializer are required.
func NewManager(q QueueAPI, tracker Tracker, mat Materializer, opts Options) *Manager {
	m := &Manager{
		queue:   q,
		tracker: tracker,
		mat:     mat,
		notify:  opts.Notifier,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if m.notify == nil {
		m.notify = NotifierFunc(func(string) {})
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Submit sends the query to the queue service, then records a tracking entry
// and writes the durable pending marker. On failure nothing is recorded.
func (m *Manager) Submit(ctx context.Context, queryText, therapyContext string) (string, error) {
	id, err := m.queue.Submit(ctx, queryText, therapyContext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	m.tracker.Add(TrackedJob{
		ID:          id,
		Query:       queryText,
		SubmittedAt: m.now(),
		Status:      queue.StatusPending,
	})

	if _, err := m.mat.WritePending(id, queryText); err != nil {
		// The job is live on the service; keep tracking it and let a later
		// poll or reconciliation materialize the result.
		m.logger.Warn("pending marker not written", "job_id", id, "error", err)
	}

	m.logger.Info("job submitted", "job_id", id)
	return id, nil
}

// Report aggregates the outcome of one poll cycle.
type Report struct {
	Polled       int
	Materialized int
	Failed       int // jobs dropped in error state
	Transient    []error
}

// Poll checks every tracked job once. Jobs are polled independently so one
// slow or failing job cannot stall the others; transient errors keep the
// entry tracked for the next cycle.
func (m *Manager) Poll(ctx context.Context) Report {
	tracked := m.tracker.List()
	report := Report{Polled: len(tracked)}
	if len(tracked) == 0 {
		return report
	}

	results := make([]pollOutcome, len(tracked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, j := range tracked {
		i, j := i, j
		g.Go(func() error {
			results[i] = m.pollOne(gctx, j)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		report.Materialized += r.materialized
		report.Failed += r.failed
		if r.err != nil {
			report.Transient = append(report.Transient, r.err)
		}
	}
	return report
}

type pollOutcome struct {
	materialized int
	failed       int
	err          error
}

func (m *Manager) pollOne(ctx context.Context, j TrackedJob) pollOutcome {
	info, err := m.queue.Status(ctx, j.ID)
	if err != nil {
		m.logger.Warn("status check failed", "job_id", j.ID, "error", err)
		return pollOutcome{err: err}
	}

	switch info.Status {
	case queue.StatusPending:
		return pollOutcome{}

	case queue.StatusProcessing:
		m.tracker.Update(j.ID, queue.StatusProcessing)
		return pollOutcome{}

	case queue.StatusError:
		msg := m.fetchErrorMessage(ctx, j.ID)
		m.tracker.Remove(j.ID)
		m.notify.Notify(fmt.Sprintf("research failed for %q: %s", j.Query, msg))
		m.logger.Info("job errored", "job_id", j.ID, "error", msg)
		return pollOutcome{failed: 1}

	case queue.StatusComplete:
		return m.materialize(ctx, j)
	}

	m.logger.Warn("unknown job status", "job_id", j.ID, "status", string(info.Status))
	return pollOutcome{}
}

// materialize fetches the result directly once complete is observed. The
// status is not re-checked first: the remote state may have moved between
// calls, and a failed result fetch is a transient error to retry next cycle,
// not data corruption.
func (m *Manager) materialize(ctx context.Context, j TrackedJob) pollOutcome {
	res, err := m.queue.Result(ctx, j.ID)
	if err != nil {
		m.logger.Warn("result fetch failed, will retry", "job_id", j.ID, "error", err)
		m.tracker.Update(j.ID, queue.StatusComplete)
		return pollOutcome{err: err}
	}

	if res.Error != "" {
		// Permanent failure recorded on the job; retrying would loop forever.
		m.tracker.Remove(j.ID)
		m.notify.Notify(fmt.Sprintf("research failed for %q: %s", j.Query, res.Error))
		m.logger.Info("job completed with error", "job_id", j.ID, "error", res.Error)
		return pollOutcome{failed: 1}
	}

	// Removing the entry before writing is what makes materialization
	// at-most-once under overlapping poll cycles: only the remover writes.
	if !m.tracker.Remove(j.ID) {
		return pollOutcome{}
	}

	path, err := m.mat.WriteResearch(j.ID, j.Query, res)
	if err != nil {
		// Entry is gone, so this job will not be retried by polling; the
		// reconciliation engine recovers it on the next sync.
		m.notify.Notify(fmt.Sprintf("could not save research for %q; run sync to recover", j.Query))
		m.logger.Error("materialize failed", "job_id", j.ID, "error", err)
		return pollOutcome{err: err}
	}

	m.notify.Notify(fmt.Sprintf("research ready: %s", path))
	m.logger.Info("job materialized", "job_id", j.ID, "path", path)
	return pollOutcome{materialized: 1}
}

func (m *Manager) fetchErrorMessage(ctx context.Context, jobID string) string {
	res, err := m.queue.Result(ctx, jobID)
	if err != nil || res.Error == "" {
		return "no error detail available"
	}
	return res.Error
}

// Run polls on the scheduler's cadence until ctx is done.
func (m *Manager) Run(ctx context.Context, sched Scheduler, interval time.Duration) {
	stop := sched.ScheduleRepeating(interval, func() {
		m.Poll(ctx)
	})
	<-ctx.Done()
	stop()
}
