package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// PendingQueryNote builds the durable "pending" marker written immediately
// after a successful submit, so the query survives a process restart.
func PendingQueryNote(jobID, query string, submitted time.Time) vault.Note {
	return vault.Note{
		Frontmatter: map[string]any{
			KeyType:    TypePendingQuery,
			KeyJobID:   jobID,
			KeyStatus:  StatusPending,
			KeyCreated: submitted.Format(time.RFC3339),
		},
		Body: fmt.Sprintf("# %s\n\nSubmitted to coach queue, awaiting research.\n", strings.TrimSpace(query)),
	}
}

// ResearchNote builds the materialized article for a completed job.
func ResearchNote(jobID, query string, res queue.Result, completed time.Time) vault.Note {
	var b strings.Builder
	b.WriteString("# " + strings.TrimSpace(query) + "\n\n")
	b.WriteString(strings.TrimSpace(res.Article))
	b.WriteString("\n")
	if len(res.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, s := range res.Sources {
			if s.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s)\n", s.Title, s.URL)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.Title)
			}
		}
	}

	fm := map[string]any{
		KeyType:    TypeResearch,
		KeyJobID:   jobID,
		KeyStatus:  StatusComplete,
		KeyCreated: completed.Format(time.RFC3339),
	}
	if res.RLMSessionID != "" {
		fm["rlm_session_id"] = res.RLMSessionID
	}
	return vault.Note{Frontmatter: fm, Body: b.String()}
}

// ConceptNote builds a technique-graph node with resolved cross-links.
// Link sets reference sibling concept notes with wiki links.
func ConceptNote(c queue.Concept) vault.Note {
	var b strings.Builder
	b.WriteString("# " + c.Name + "\n")
	writeLinkSection(&b, "Prerequisites", c.Prerequisites)
	writeLinkSection(&b, "Leads To", c.LeadsTo)
	writeLinkSection(&b, "Counters", c.Counters)
	writeLinkSection(&b, "Related", c.Related)

	fm := map[string]any{
		KeyType: TypeConcept,
		KeyName: c.Name,
	}
	if c.Category != "" {
		fm["category"] = c.Category
	}
	if c.Parent != "" {
		fm["parent"] = fmt.Sprintf("[[%s]]", SafeName(c.Parent))
	}
	return vault.Note{Frontmatter: fm, Body: b.String()}
}

func writeLinkSection(b *strings.Builder, heading string, names []string) {
	if len(names) == 0 {
		return
	}
	b.WriteString("\n## " + heading + "\n\n")
	for _, n := range names {
		fmt.Fprintf(b, "- [[%s]]\n", SafeName(n))
	}
}

// SummaryNote builds the per-athlete summary. This is a derived view and is
// fully regenerated on every coach pull; overwriting it is safe.
func SummaryNote(a queue.Athlete, g queue.GraphSnapshot, now time.Time) vault.Note {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", a.Name())

	if len(g.Topics) > 0 {
		b.WriteString("\n## Current Topics\n\n")
		for _, t := range g.Topics {
			b.WriteString("- " + t + "\n")
		}
	}
	if len(g.Queries) > 0 {
		b.WriteString("\n## Open Queries\n\n")
		for _, q := range g.Queries {
			b.WriteString("- " + q + "\n")
		}
	}
	if len(g.Sessions) > 0 {
		b.WriteString("\n## Recent Sessions\n\n")
		for _, s := range g.Sessions {
			line := "- " + s.Date
			if s.Focus != "" {
				line += " — " + s.Focus
			}
			b.WriteString(line + "\n")
			if s.Notes != "" {
				b.WriteString("  " + s.Notes + "\n")
			}
		}
	}

	return vault.Note{
		Frontmatter: map[string]any{
			KeyType:      TypeSummary,
			"athlete_id": a.DiscordID,
			"updated":    now.Format(time.RFC3339),
		},
		Body: b.String(),
	}
}
