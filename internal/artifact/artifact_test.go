package artifact

import (
	"strings"
	"testing"
	"time"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

func TestSafeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain query", "plain query"},
		{"half/guard: retention", "half-guard- retention"},
		{"  trimmed  ", "trimmed"},
		{"a#b|c[d]e", "a-b-c-d-e"},
	}
	for _, c := range cases {
		if got := SafeName(c.in); got != c.want {
			t.Errorf("SafeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	long := SafeName(string(make([]byte, 200)))
	if len(long) > 80 {
		t.Errorf("SafeName did not cap length: %d", len(long))
	}
}

func TestPaths(t *testing.T) {
	when := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	if got := PendingQueryPath("knee cut counter", when); got != "Queries/2026-03-15 knee cut counter.md" {
		t.Errorf("PendingQueryPath = %q", got)
	}
	if got := ResearchPath("knee cut counter", when); got != "Research/2026-03-15 knee cut counter.md" {
		t.Errorf("ResearchPath = %q", got)
	}
	if got := ConceptPath("Knee Cut"); got != "Concepts/Knee Cut.md" {
		t.Errorf("ConceptPath = %q", got)
	}
}

func TestFindByJobID(t *testing.T) {
	store := vault.NewMemory()
	w := &Writer{Store: store}

	if _, err := w.WritePending("job-7", "guard retention"); err != nil {
		t.Fatalf("WritePending: %v", err)
	}
	// A note a human broke should not abort the scan.
	if err := store.Create("Queries/broken.md", "---\nunbalanced: [\n---\nx"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	path, found, err := FindByJobID(store, "job-7")
	if err != nil {
		t.Fatalf("FindByJobID: %v", err)
	}
	if !found {
		t.Fatal("marker not found")
	}
	fm, err := store.Frontmatter(path)
	if err != nil {
		t.Fatalf("Frontmatter: %v", err)
	}
	if fm[KeyJobID] != "job-7" {
		t.Errorf("job_id = %v", fm[KeyJobID])
	}

	if _, found, _ := FindByJobID(store, "nope"); found {
		t.Error("found artifact for unknown job id")
	}
}

func TestWriteResearch_FlipsPendingStatus(t *testing.T) {
	store := vault.NewMemory()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	w := &Writer{Store: store, Now: func() time.Time { return now }}

	pendingPath, err := w.WritePending("job-1", "berimbolo defense")
	if err != nil {
		t.Fatalf("WritePending: %v", err)
	}

	res := queue.Result{
		Status:       queue.StatusComplete,
		Article:      "# Defense\n\nStay heavy on the far knee.",
		Sources:      []queue.Source{{Title: "Match study", URL: "https://example.com/m1"}},
		RLMSessionID: "rlm-42",
	}
	researchPath, err := w.WriteResearch("job-1", "berimbolo defense", res)
	if err != nil {
		t.Fatalf("WriteResearch: %v", err)
	}

	n, err := vault.ReadNote(store, researchPath)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if n.String(KeyType) != TypeResearch || n.String(KeyJobID) != "job-1" {
		t.Errorf("research frontmatter = %v", n.Frontmatter)
	}
	if n.String("rlm_session_id") != "rlm-42" {
		t.Errorf("rlm_session_id = %q", n.String("rlm_session_id"))
	}

	p, err := vault.ReadNote(store, pendingPath)
	if err != nil {
		t.Fatalf("ReadNote pending: %v", err)
	}
	if p.String(KeyStatus) != StatusComplete {
		t.Errorf("pending note status = %q, want complete", p.String(KeyStatus))
	}
}

func TestWriteConcept_DeduplicatesByName(t *testing.T) {
	store := vault.NewMemory()
	w := &Writer{Store: store}

	c := queue.Concept{Name: "Knee Cut", Prerequisites: []string{"Headquarters"}}
	created, err := w.WriteConcept(c)
	if err != nil {
		t.Fatalf("WriteConcept: %v", err)
	}
	if !created {
		t.Fatal("first WriteConcept did not create")
	}

	original, _ := store.Read(ConceptPath("Knee Cut"))

	// Same name with different content must be a silent no-op.
	c.Prerequisites = []string{"Completely different"}
	created, err = w.WriteConcept(c)
	if err != nil {
		t.Fatalf("second WriteConcept: %v", err)
	}
	if created {
		t.Error("second WriteConcept reported created")
	}
	after, _ := store.Read(ConceptPath("Knee Cut"))
	if after != original {
		t.Error("existing concept note was modified")
	}
}

func TestWriteSummary_FullyRegenerates(t *testing.T) {
	store := vault.NewMemory()
	w := &Writer{Store: store}
	a := queue.Athlete{DiscordID: "disc-1", DisplayName: "Sam"}

	if _, err := w.WriteSummary(a, queue.GraphSnapshot{Topics: []string{"old topic"}}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	path, err := w.WriteSummary(a, queue.GraphSnapshot{Topics: []string{"new topic"}})
	if err != nil {
		t.Fatalf("WriteSummary rewrite: %v", err)
	}

	text, _ := store.Read(path)
	if !strings.Contains(text, "new topic") {
		t.Errorf("summary missing new content: %q", text)
	}
	if strings.Contains(text, "old topic") {
		t.Errorf("stale content survived regeneration: %q", text)
	}
}
