package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/matsync/matsync/internal/queue"
)

// TrackedJob is the local bookkeeping entry for one submitted job that has
// not yet been materialized.
type TrackedJob struct {
	ID          string
	Query       string
	SubmittedAt time.Time
	Status      queue.Status
}

// Tracker owns the set of in-flight jobs. It is an injected collection, not
// ambient module state, so independent Manager instances never interfere.
type Tracker interface {
	Add(j TrackedJob)
	Get(id string) (TrackedJob, bool)
	// Update records a newly observed status. Regressions are ignored: the
	// locally observed sequence stays a subsequence of
	// pending, processing, complete|error.
	Update(id string, status queue.Status)
	// Remove deletes the entry and reports whether it was present. The bool
	// is what makes materialization at-most-once: only the caller that
	// actually removed the entry goes on to write the artifact.
	Remove(id string) bool
	// List returns tracked jobs in a stable order (submission time, then id).
	List() []TrackedJob
}

// MemoryTracker is the default Tracker.
type MemoryTracker struct {
	mu   sync.Mutex
	jobs map[string]TrackedJob
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{jobs: map[string]TrackedJob{}}
}

func (t *MemoryTracker) Add(j TrackedJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[j.ID] = j
}

func (t *MemoryTracker) Get(id string) (TrackedJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

func (t *MemoryTracker) Update(id string, status queue.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	if status.Rank() < j.Status.Rank() {
		return
	}
	j.Status = status
	t.jobs[id] = j
}

func (t *MemoryTracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[id]
	delete(t.jobs, id)
	return ok
}

func (t *MemoryTracker) List() []TrackedJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedJob, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].SubmittedAt.Equal(out[k].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[k].SubmittedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}
