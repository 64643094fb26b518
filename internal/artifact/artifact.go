// Package artifact models the durable content units written to the vault:
// pending-query notes, research articles, athlete summaries, concept nodes,
// reviews, and skill-development sessions. Identity comes from the embedded
// marker in the frontmatter (job_id, or name for concepts), never from the
// file path, which may change as status changes.
package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// Vault folders, one per artifact kind.
const (
	FolderQueries  = "Queries"
	FolderResearch = "Research"
	FolderConcepts = "Concepts"
	FolderAthletes = "Athletes"
	FolderReviews  = "Reviews"
	FolderSessions = "Skill Sessions"
)

// Frontmatter keys. KeyJobID is the embedded identity marker; it is
// immutable once created. Only KeyStatus and the file location may change.
const (
	KeyType    = "type"
	KeyJobID   = "job_id"
	KeyStatus  = "status"
	KeySource  = "source"
	KeyCreated = "created"
	KeyName    = "name"
)

// Artifact type tags.
const (
	TypePendingQuery = "pending-query"
	TypeResearch     = "research"
	TypeSummary      = "athlete-summary"
	TypeConcept      = "concept"
	TypeReview       = "review"
	TypeSkillSession = "skill-session"
)

// Artifact status values.
const (
	StatusPending   = "pending"
	StatusComplete  = "complete"
	StatusError     = "error"
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// SafeName converts a free-text title into a filename component.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '#' || r == '|' || r == '^' || r == '[' || r == ']':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return strings.TrimSpace(s)
}

// PendingQueryPath returns the note path for a freshly submitted query.
func PendingQueryPath(query string, submitted time.Time) string {
	return fmt.Sprintf("%s/%s %s.md", FolderQueries, submitted.Format("2006-01-02"), SafeName(query))
}

// ResearchPath returns the note path for a completed research article.
func ResearchPath(query string, completed time.Time) string {
	return fmt.Sprintf("%s/%s %s.md", FolderResearch, completed.Format("2006-01-02"), SafeName(query))
}

// ConceptPath returns the note path for a concept by name. Concepts are
// deduplicated by name within this folder.
func ConceptPath(name string) string {
	return fmt.Sprintf("%s/%s.md", FolderConcepts, SafeName(name))
}

// SummaryPath returns the per-athlete summary path on the coach side.
func SummaryPath(a queue.Athlete) string {
	return fmt.Sprintf("%s/%s.md", FolderAthletes, SafeName(a.Name()))
}

// FindByJobID scans the vault for an artifact whose embedded job_id marker
// equals jobID. Files that fail to parse are skipped: a human-edited note
// must not abort the scan.
func FindByJobID(store vault.Store, jobID string) (string, bool, error) {
	paths, err := store.ListFiles()
	if err != nil {
		return "", false, err
	}
	for _, p := range paths {
		if !strings.HasSuffix(p, ".md") {
			continue
		}
		fm, err := store.Frontmatter(p)
		if err != nil {
			continue
		}
		if id, ok := fm[KeyJobID].(string); ok && id == jobID {
			return p, true, nil
		}
	}
	return "", false, nil
}

// ConceptExists reports whether a concept note of this name already exists.
// Dedup is by name, not by content: re-pushing an updated concept does not
// update the existing note.
func ConceptExists(store vault.Store, name string) (bool, error) {
	return store.Exists(ConceptPath(name))
}
