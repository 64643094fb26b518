// Package linker maintains the lineage DAG between artifacts: raw capture →
// pending query → draft review → published review → skill-development chain.
// Links are wiki references in a named section of the parent plus a `source`
// frontmatter field on the child.
package linker

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/matsync/matsync/internal/artifact"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// Linker navigates and repairs artifact lineage in one vault.
type Linker struct {
	store  vault.Store
	logger *slog.Logger
}

// New creates a Linker over the given store.
func New(store vault.Store, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{store: store, logger: logger}
}

// noteName is the wiki-link name of a vault path (base name, no extension).
func noteName(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// LinkChild appends a wiki reference to childPath under the named section of
// parentPath. Re-linking is a no-op: the parent is re-read immediately before
// mutation and the link is only added if not already present.
func (l *Linker) LinkChild(parentPath, section, childPath string) error {
	n, err := vault.ReadNote(l.store, parentPath)
	if err != nil {
		return fmt.Errorf("reading parent: %w", err)
	}

	link := "[[" + noteName(childPath) + "]]"
	if strings.Contains(n.Body, link) {
		return nil
	}

	heading := "## " + section
	entry := "- " + link
	if idx := strings.Index(n.Body, heading); idx >= 0 {
		// Insert at the end of the section (before the next heading, or EOF).
		after := n.Body[idx+len(heading):]
		rel := strings.Index(after, "\n## ")
		if rel < 0 {
			n.Body = strings.TrimRight(n.Body, "\n") + "\n" + entry + "\n"
		} else {
			insertAt := idx + len(heading) + rel
			n.Body = strings.TrimRight(n.Body[:insertAt], "\n") + "\n" + entry + "\n" + n.Body[insertAt+1:]
		}
	} else {
		n.Body = strings.TrimRight(n.Body, "\n") + "\n\n" + heading + "\n\n" + entry + "\n"
	}

	if err := vault.WriteNote(l.store, parentPath, n); err != nil {
		return fmt.Errorf("writing parent: %w", err)
	}
	return nil
}

// ResolveSource resolves the `source` reference of the artifact at p to a
// concrete path. Exactly one hop: the reference names the immediate parent
// only, by path or by note name.
func (l *Linker) ResolveSource(p string) (string, error) {
	fm, err := l.store.Frontmatter(p)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	ref, _ := fm[artifact.KeySource].(string)
	ref = strings.TrimSuffix(strings.TrimPrefix(ref, "[["), "]]")
	if ref == "" {
		return "", &queue.Error{Kind: queue.KindConsistency, Op: "resolve_source", Message: fmt.Sprintf("%s has no source reference", p)}
	}

	if ok, err := l.store.Exists(ref); err == nil && ok {
		return ref, nil
	}

	paths, err := l.store.ListFiles()
	if err != nil {
		return "", err
	}
	for _, candidate := range paths {
		if noteName(candidate) == ref {
			return candidate, nil
		}
	}
	return "", &queue.Error{Kind: queue.KindConsistency, Op: "resolve_source", Message: fmt.Sprintf("source %q of %s not found", ref, p)}
}

// SetStatus rewrites only the status field of the note at p, re-reading the
// current content immediately before mutating it.
func (l *Linker) SetStatus(p, status string) error {
	n, err := vault.ReadNote(l.store, p)
	if err != nil {
		return err
	}
	n.Set(artifact.KeyStatus, status)
	return vault.WriteNote(l.store, p, n)
}

// PropagateStatus completes a derived artifact and carries the status to its
// source so the two never disagree about whether the job is done. This is a
// two-write operation with no transactional guarantee: the child write must
// succeed; the parent update is best-effort and a failure is reported as a
// partial-completion error for the caller to log. Repair re-derives parent
// status on demand.
func (l *Linker) PropagateStatus(childPath, status string) error {
	if err := l.SetStatus(childPath, status); err != nil {
		return fmt.Errorf("updating child: %w", err)
	}

	parent, err := l.ResolveSource(childPath)
	if err == nil {
		err = l.SetStatus(parent, status)
	}
	if err != nil {
		return &queue.Error{Kind: queue.KindPartial, Op: "propagate_status", Message: "child updated, source update failed", Err: err}
	}
	return nil
}

// Repair re-derives each parent's status from its children: any parent
// referenced as a source whose child carries a terminal-ish status
// (complete/published) is flipped to that status. Returns the number of
// parents updated.
func (l *Linker) Repair() (int, error) {
	paths, err := l.store.ListFiles()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, p := range paths {
		fm, err := l.store.Frontmatter(p)
		if err != nil {
			continue
		}
		src, _ := fm[artifact.KeySource].(string)
		status, _ := fm[artifact.KeyStatus].(string)
		if src == "" || (status != artifact.StatusComplete && status != artifact.StatusPublished) {
			continue
		}

		parent, err := l.ResolveSource(p)
		if err != nil {
			l.logger.Warn("unresolvable source during repair", "path", p, "error", err)
			continue
		}
		pfm, err := l.store.Frontmatter(parent)
		if err != nil {
			continue
		}
		if cur, _ := pfm[artifact.KeyStatus].(string); cur == status {
			continue
		}
		if err := l.SetStatus(parent, status); err != nil {
			l.logger.Warn("parent status repair failed", "path", parent, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
