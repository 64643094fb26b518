package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

type fakeAthleteQueue struct {
	jobs       []queue.Job
	results    map[string]queue.Result
	resultErrs map[string]error
	concepts   []queue.Concept
}

func (f *fakeAthleteQueue) Jobs(context.Context) ([]queue.Job, error) {
	return f.jobs, nil
}

func (f *fakeAthleteQueue) Result(_ context.Context, jobID string) (queue.Result, error) {
	if err := f.resultErrs[jobID]; err != nil {
		return queue.Result{}, err
	}
	return f.results[jobID], nil
}

func (f *fakeAthleteQueue) Concepts(context.Context) ([]queue.Concept, error) {
	return f.concepts, nil
}

func countFiles(t *testing.T, store vault.Store) int {
	t.Helper()
	paths, err := store.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	return len(paths)
}

func TestAthletePull_IsIdempotent(t *testing.T) {
	q := &fakeAthleteQueue{
		jobs: []queue.Job{
			{ID: "j1", QueryText: "knee cut counter", Status: queue.StatusComplete},
			{ID: "j2", QueryText: "still running", Status: queue.StatusProcessing},
		},
		results: map[string]queue.Result{
			"j1": {Status: queue.StatusComplete, Article: "# A"},
		},
		concepts: []queue.Concept{{Name: "Knee Cut"}},
	}
	store := vault.NewMemory()
	sync := NewAthleteSync(q, store, nil)

	report, err := sync.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Created != 2 || report.Failed != 0 {
		t.Errorf("first pull report = %+v, want 2 created", report)
	}
	files := countFiles(t, store)

	// Second run creates nothing new.
	report, err = sync.Pull(context.Background())
	if err != nil {
		t.Fatalf("second Pull: %v", err)
	}
	if report.Created != 0 || report.Skipped != 2 {
		t.Errorf("second pull report = %+v, want 0 created, 2 skipped", report)
	}
	if got := countFiles(t, store); got != files {
		t.Errorf("file count changed on re-run: %d -> %d", files, got)
	}
}

func TestAthletePull_SkipsJobsWithExistingMarker(t *testing.T) {
	store := vault.NewMemory()
	w := &artifact.Writer{Store: store}
	if _, err := w.WriteResearch("j1", "already here", queue.Result{Article: "# A"}); err != nil {
		t.Fatalf("WriteResearch: %v", err)
	}

	q := &fakeAthleteQueue{
		jobs: []queue.Job{{ID: "j1", QueryText: "already here", Status: queue.StatusComplete}},
	}
	report, err := NewAthleteSync(q, store, nil).Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Skipped != 1 || report.Created != 0 {
		t.Errorf("report = %+v, want the job skipped", report)
	}
}

func TestAthletePull_ErroredJobNeverMaterializes(t *testing.T) {
	q := &fakeAthleteQueue{
		jobs: []queue.Job{{ID: "j1", QueryText: "bad", Status: queue.StatusComplete}},
		results: map[string]queue.Result{
			"j1": {Status: queue.StatusComplete, Error: "model timeout"},
		},
	}
	store := vault.NewMemory()
	report, err := NewAthleteSync(q, store, nil).Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("report = %+v, want nothing created", report)
	}
	if n := countFiles(t, store); n != 0 {
		t.Errorf("artifact written for errored job: %d files", n)
	}
}

func TestAthletePull_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	q := &fakeAthleteQueue{
		jobs: []queue.Job{
			{ID: "j1", QueryText: "fails", Status: queue.StatusComplete},
			{ID: "j2", QueryText: "works", Status: queue.StatusComplete},
		},
		results: map[string]queue.Result{
			"j2": {Status: queue.StatusComplete, Article: "# B"},
		},
		resultErrs: map[string]error{"j1": errors.New("connection reset")},
	}
	store := vault.NewMemory()
	report, err := NewAthleteSync(q, store, nil).Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Created != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 created, 1 failed", report)
	}
	if _, found, _ := artifact.FindByJobID(store, "j2"); !found {
		t.Error("healthy job not materialized")
	}
}

type fakeCoachAPI struct {
	roster    []queue.Athlete
	graphs    map[string]queue.GraphSnapshot
	graphErrs map[string]error
	pending   []queue.Job
}

func (f *fakeCoachAPI) Roster(context.Context) ([]queue.Athlete, error) {
	return f.roster, nil
}

func (f *fakeCoachAPI) AthleteGraph(_ context.Context, athleteID string) (queue.GraphSnapshot, error) {
	if err := f.graphErrs[athleteID]; err != nil {
		return queue.GraphSnapshot{}, err
	}
	return f.graphs[athleteID], nil
}

func (f *fakeCoachAPI) Pending(context.Context) ([]queue.Job, error) {
	return f.pending, nil
}

func TestCoachPull_CreatesOnlyUnseenPending(t *testing.T) {
	store := vault.NewMemory()
	w := &artifact.Writer{Store: store}
	// Two of three pending jobs already have notes in the coach vault.
	for _, id := range []string{"j1", "j2"} {
		if _, err := w.WritePending(id, "existing "+id); err != nil {
			t.Fatalf("WritePending: %v", err)
		}
	}

	c := &fakeCoachAPI{
		pending: []queue.Job{
			{ID: "j1", QueryText: "existing j1"},
			{ID: "j2", QueryText: "existing j2"},
			{ID: "j3", QueryText: "brand new"},
		},
	}
	report, err := NewCoachSync(c, store, nil).Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Created != 1 || report.Skipped != 2 {
		t.Errorf("report = %+v, want 1 created, 2 skipped", report)
	}
	if _, found, _ := artifact.FindByJobID(store, "j3"); !found {
		t.Error("new pending job not written")
	}
}

func TestCoachPull_RegeneratesSummaries(t *testing.T) {
	store := vault.NewMemory()
	a := queue.Athlete{DiscordID: "d1", DisplayName: "Sam"}
	c := &fakeCoachAPI{
		roster: []queue.Athlete{a},
		graphs: map[string]queue.GraphSnapshot{
			"d1": {Topics: []string{"first pull"}},
		},
	}
	sync := NewCoachSync(c, store, nil)

	if _, err := sync.Pull(context.Background()); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	c.graphs["d1"] = queue.GraphSnapshot{Topics: []string{"second pull"}}
	if _, err := sync.Pull(context.Background()); err != nil {
		t.Fatalf("second Pull: %v", err)
	}

	text, err := store.Read(artifact.SummaryPath(a))
	if err != nil {
		t.Fatalf("Read summary: %v", err)
	}
	if !strings.Contains(text, "second pull") || strings.Contains(text, "first pull") {
		t.Errorf("summary not fully regenerated: %q", text)
	}
}

func TestCoachPull_OneAthleteFailureIsCounted(t *testing.T) {
	store := vault.NewMemory()
	c := &fakeCoachAPI{
		roster: []queue.Athlete{
			{DiscordID: "d1"},
			{DiscordID: "d2"},
		},
		graphs:    map[string]queue.GraphSnapshot{"d2": {Topics: []string{"x"}}},
		graphErrs: map[string]error{"d1": errors.New("timeout")},
	}
	report, err := NewCoachSync(c, store, nil).Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if report.Created != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 created, 1 failed", report)
	}
	if ok, _ := store.Exists(artifact.SummaryPath(queue.Athlete{DiscordID: "d2"})); !ok {
		t.Error("healthy athlete summary missing")
	}
}
