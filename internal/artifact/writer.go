package artifact

import (
	"fmt"
	"time"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// Writer materializes artifacts into a vault. Now is injectable for tests;
// when nil, time.Now is used.
type Writer struct {
	Store vault.Store
	Now   func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// WritePending writes the durable pending marker for a freshly submitted job.
func (w *Writer) WritePending(jobID, query string) (string, error) {
	now := w.now()
	path := PendingQueryPath(query, now)
	note := PendingQueryNote(jobID, query, now)
	if err := vault.WriteNote(w.Store, path, note); err != nil {
		return "", fmt.Errorf("writing pending note: %w", err)
	}
	return path, nil
}

// WriteResearch materializes a completed result as a research artifact and
// marks any pending-query note carrying the same job id as complete.
func (w *Writer) WriteResearch(jobID, query string, res queue.Result) (string, error) {
	now := w.now()
	path := ResearchPath(query, now)
	note := ResearchNote(jobID, query, res, now)
	if err := vault.WriteNote(w.Store, path, note); err != nil {
		return "", fmt.Errorf("writing research note: %w", err)
	}

	// Best-effort: flip the originating pending note so the two artifacts
	// never disagree about whether the job is done.
	if pending, ok, err := w.findPendingForJob(jobID, path); err == nil && ok {
		_ = w.setStatus(pending, StatusComplete)
	}
	return path, nil
}

// WriteConcept creates a concept note unless one of the same name already
// exists. Returns true when a note was created.
func (w *Writer) WriteConcept(c queue.Concept) (bool, error) {
	exists, err := ConceptExists(w.Store, c.Name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	note := ConceptNote(c)
	if err := vault.WriteNote(w.Store, ConceptPath(c.Name), note); err != nil {
		return false, fmt.Errorf("writing concept %q: %w", c.Name, err)
	}
	return true, nil
}

// WriteSummary fully regenerates the per-athlete summary.
func (w *Writer) WriteSummary(a queue.Athlete, g queue.GraphSnapshot) (string, error) {
	path := SummaryPath(a)
	note := SummaryNote(a, g, w.now())
	if err := vault.WriteNote(w.Store, path, note); err != nil {
		return "", fmt.Errorf("writing summary for %s: %w", a.Name(), err)
	}
	return path, nil
}

// findPendingForJob locates the pending-query note for jobID, excluding the
// research note just written (which carries the same marker).
func (w *Writer) findPendingForJob(jobID, exclude string) (string, bool, error) {
	paths, err := w.Store.ListFiles()
	if err != nil {
		return "", false, err
	}
	for _, p := range paths {
		if p == exclude {
			continue
		}
		fm, err := w.Store.Frontmatter(p)
		if err != nil {
			continue
		}
		id, _ := fm[KeyJobID].(string)
		typ, _ := fm[KeyType].(string)
		if id == jobID && typ == TypePendingQuery {
			return p, true, nil
		}
	}
	return "", false, nil
}

// setStatus re-reads the note immediately before mutating it, then rewrites
// only the status field.
func (w *Writer) setStatus(path, status string) error {
	n, err := vault.ReadNote(w.Store, path)
	if err != nil {
		return err
	}
	n.Set(KeyStatus, status)
	return vault.WriteNote(w.Store, path, n)
}
