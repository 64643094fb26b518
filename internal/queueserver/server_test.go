package queueserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/therapy"
)

const (
	athleteToken = "athlete-token"
	coachToken   = "coach-token"
)

// newTestService starts the full service against an in-memory database and
// returns the real clients wired to it.
func newTestService(t *testing.T) (*queue.Client, *queue.CoachClient, *httptest.Server) {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		AthleteTokens: map[string]string{athleteToken: "disc-1"},
		CoachToken:    coachToken,
	}
	srv := httptest.NewServer(NewHandler(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)

	return queue.NewClient(srv.URL, athleteToken), queue.NewCoachClient(srv.URL, coachToken), srv
}

func TestService_FullJobLifecycle(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	id, err := athlete.Submit(ctx, "passing the knee shield", "transcript: x")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	info, err := athlete.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != queue.StatusPending {
		t.Errorf("status = %s, want pending", info.Status)
	}

	pending, err := coach.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].AthleteID != "disc-1" {
		t.Errorf("athlete_id = %q", pending[0].AthleteID)
	}

	if err := coach.Claim(ctx, id); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	info, _ = athlete.Status(ctx, id)
	if info.Status != queue.StatusProcessing {
		t.Errorf("status after claim = %s, want processing", info.Status)
	}
	if info.StartedAt == nil {
		t.Error("started_at not set after claim")
	}

	completion := queue.Completion{
		Article:      "# Passing the knee shield\n\nKill the bottom knee first.",
		Sources:      []queue.Source{{Title: "Study", URL: "https://example.com/s"}},
		RLMSessionID: "rlm-1",
	}
	if err := coach.Complete(ctx, id, completion); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	res, err := athlete.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Status != queue.StatusComplete {
		t.Errorf("result status = %s", res.Status)
	}
	if res.Article != completion.Article || res.RLMSessionID != "rlm-1" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Sources) != 1 || res.Sources[0].Title != "Study" {
		t.Errorf("sources = %+v", res.Sources)
	}
}

func TestService_ClaimConflicts(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	id, err := athlete.Submit(ctx, "some query", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := coach.Claim(ctx, id); err != nil {
		t.Fatalf("first Claim: %v", err)
	}

	err = coach.Claim(ctx, id)
	if !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("second claim err = %v, want domain error", err)
	}

	if err := coach.Claim(ctx, "00000000-0000-0000-0000-000000000000"); !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("claim of unknown job = %v, want domain error", err)
	}
}

func TestService_TerminalStateIsImmutable(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	id, _ := athlete.Submit(ctx, "q", "")
	if err := coach.CompleteAfterClaim(ctx, id, queue.Completion{Article: "# A"}); err != nil {
		t.Fatalf("CompleteAfterClaim: %v", err)
	}

	// No re-completion, no re-claim: terminal means terminal.
	if err := coach.Complete(ctx, id, queue.Completion{Article: "# B"}); !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("re-complete err = %v, want domain error", err)
	}
	if err := coach.Claim(ctx, id); !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("claim of terminal job err = %v, want domain error", err)
	}

	res, err := athlete.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Article != "# A" {
		t.Errorf("article rewritten after terminal state: %q", res.Article)
	}
}

func TestService_CompleteWithErrorSetsErrorState(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	id, _ := athlete.Submit(ctx, "q", "")
	if err := coach.CompleteAfterClaim(ctx, id, queue.Completion{Error: "model timeout"}); err != nil {
		t.Fatalf("CompleteAfterClaim: %v", err)
	}

	info, _ := athlete.Status(ctx, id)
	if info.Status != queue.StatusError {
		t.Errorf("status = %s, want error", info.Status)
	}
	res, _ := athlete.Result(ctx, id)
	if res.Error != "model timeout" {
		t.Errorf("error = %q, want service message verbatim", res.Error)
	}
}

func TestService_CompleteAfterClaimSurvivesLostClaim(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	id, _ := athlete.Submit(ctx, "q", "")
	// Another actor takes the claim first.
	if err := coach.Claim(ctx, id); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err := coach.CompleteAfterClaim(ctx, id, queue.Completion{Article: "# A"})
	if !queue.IsKind(err, queue.KindPartial) {
		t.Fatalf("err = %v, want partial-completion", err)
	}

	// The completion itself landed.
	res, ferr := athlete.Result(ctx, id)
	if ferr != nil {
		t.Fatalf("Result: %v", ferr)
	}
	if res.Status != queue.StatusComplete || res.Article != "# A" {
		t.Errorf("result = %+v", res)
	}
}

func TestService_AthleteSeesOnlyOwnJobs(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		AthleteTokens: map[string]string{
			"tok-a": "disc-a",
			"tok-b": "disc-b",
		},
		CoachToken: coachToken,
	}
	srv := httptest.NewServer(NewHandler(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	alice := queue.NewClient(srv.URL, "tok-a")
	bob := queue.NewClient(srv.URL, "tok-b")

	id, err := alice.Submit(ctx, "alice's query", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := bob.Status(ctx, id); !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("cross-athlete status err = %v, want domain (not found)", err)
	}

	jobs, err := bob.Jobs(ctx)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("bob sees %d jobs, want 0", len(jobs))
	}
}

func TestService_AuthRejections(t *testing.T) {
	athlete, _, srv := newTestService(t)
	ctx := context.Background()

	bad := queue.NewClient(srv.URL, "wrong-token")
	if _, err := bad.Jobs(ctx); !queue.IsKind(err, queue.KindAuth) {
		t.Errorf("bad token err = %v, want auth error", err)
	}

	// Athlete tokens cannot reach coach endpoints.
	athleteAsCoach := queue.NewCoachClient(srv.URL, athleteToken)
	if _, err := athleteAsCoach.Pending(ctx); !queue.IsKind(err, queue.KindAuth) {
		t.Errorf("role violation err = %v, want auth error", err)
	}

	if err := athlete.Health(ctx); err != nil {
		t.Errorf("Health with any token: %v", err)
	}
}

func TestService_ConceptsPushAndList(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	concepts := []queue.Concept{
		{Name: "Knee Cut", Category: "passing", Prerequisites: []string{"Headquarters"}},
		{Name: "Headquarters", Category: "passing"},
	}
	stats, err := coach.PushConcepts(ctx, "disc-1", concepts)
	if err != nil {
		t.Fatalf("PushConcepts: %v", err)
	}
	if stats.Created != 2 || stats.Updated != 0 {
		t.Errorf("stats = %+v, want 2 created", stats)
	}

	// Re-push updates in place.
	stats, err = coach.PushConcepts(ctx, "disc-1", concepts[:1])
	if err != nil {
		t.Fatalf("second PushConcepts: %v", err)
	}
	if stats.Created != 0 || stats.Updated != 1 {
		t.Errorf("stats = %+v, want 1 updated", stats)
	}

	got, err := athlete.Concepts(ctx)
	if err != nil {
		t.Fatalf("Concepts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("concepts = %d, want 2", len(got))
	}
	var kneeCut queue.Concept
	for _, c := range got {
		if c.Name == "Knee Cut" {
			kneeCut = c
		}
	}
	if len(kneeCut.Prerequisites) != 1 || kneeCut.Prerequisites[0] != "Headquarters" {
		t.Errorf("link set lost: %+v", kneeCut)
	}
}

func TestService_GraphSyncAndFetch(t *testing.T) {
	athlete, coach, _ := newTestService(t)
	ctx := context.Background()

	snap := queue.GraphSnapshot{
		Sessions: []queue.TrainingSession{{Date: "2026-03-10", Focus: "half guard"}},
		Queries:  []string{"knee shield retention"},
		Topics:   []string{"passing"},
	}
	if err := athlete.SyncGraph(ctx, snap); err != nil {
		t.Fatalf("SyncGraph: %v", err)
	}

	got, err := coach.AthleteGraph(ctx, "disc-1")
	if err != nil {
		t.Fatalf("AthleteGraph: %v", err)
	}
	if len(got.Sessions) != 1 || got.Sessions[0].Focus != "half guard" {
		t.Errorf("snapshot = %+v", got)
	}

	if _, err := coach.AthleteGraph(ctx, "disc-unknown"); !queue.IsKind(err, queue.KindDomain) {
		t.Errorf("unknown athlete err = %v, want domain error", err)
	}
}

func TestService_Roster(t *testing.T) {
	_, coach, _ := newTestService(t)
	ctx := context.Background()

	if err := coach.AddAthlete(ctx, "disc-2", "Sam"); err != nil {
		t.Fatalf("AddAthlete: %v", err)
	}
	// Re-adding renames rather than duplicating.
	if err := coach.AddAthlete(ctx, "disc-2", "Samantha"); err != nil {
		t.Fatalf("second AddAthlete: %v", err)
	}

	roster, err := coach.Roster(ctx)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster = %+v, want one entry", roster)
	}
	if roster[0].Name() != "Samantha" {
		t.Errorf("display name = %q", roster[0].Name())
	}
}

func TestService_TherapyDialogue(t *testing.T) {
	_, _, srv := newTestService(t)
	ctx := context.Background()
	tc := therapy.NewClient(srv.URL, athleteToken)

	t.Run("short transcript gets one clarifying round", func(t *testing.T) {
		turn, err := tc.Start(ctx, "mount escape")
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if turn.State != therapy.StateClarifying || turn.SessionID == "" || turn.Question == "" {
			t.Fatalf("turn = %+v", turn)
		}

		turn, err = tc.Respond(ctx, turn.SessionID, "opponent posts high on my chest")
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if turn.State != therapy.StateReady {
			t.Fatalf("turn = %+v", turn)
		}
		if !strings.Contains(turn.EnrichedQuery, "mount escape") ||
			!strings.Contains(turn.EnrichedQuery, "opponent posts high") {
			t.Errorf("enriched = %q", turn.EnrichedQuery)
		}

		// Sessions are one-shot.
		if _, err := tc.Respond(ctx, turn.SessionID, "again"); err == nil {
			t.Error("respond on consumed session should fail")
		}
	})

	t.Run("detailed transcript goes straight to ready", func(t *testing.T) {
		transcript := "kept getting my knee shield flattened against strong pressure passers"
		turn, err := tc.Start(ctx, transcript)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if turn.State != therapy.StateReady || turn.EnrichedQuery != transcript {
			t.Errorf("turn = %+v", turn)
		}
	})
}

func TestStore_ClaimRaceSingleWinner(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	id, err := store.CreateJob("disc-1", "q", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	wins := 0
	for i := 0; i < 4; i++ {
		err := store.ClaimJob(id)
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyClaimed) {
			t.Errorf("claim %d: %v", i, err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestService_SubmitValidation(t *testing.T) {
	_, _, srv := newTestService(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/queue/submit", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+athleteToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "query_text is required") {
		t.Errorf("body = %s", body)
	}
}
