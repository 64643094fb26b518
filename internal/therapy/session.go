package therapy

import (
	"context"
	"fmt"
)

// Dialogue is the subset of Client the session state machine needs.
type Dialogue interface {
	Start(ctx context.Context, transcript string) (Turn, error)
	Respond(ctx context.Context, sessionID, answer string) (Turn, error)
}

// Session is the ephemeral state of one capture interaction. It is discarded
// once it yields an enriched query or is abandoned; one session produces at
// most one submitted job.
type Session struct {
	Transcript string
	ID         string
	State      State
	Question   string

	enriched string
	answers  []string
}

// Begin submits the transcript and returns the session positioned at the
// first turn.
func Begin(ctx context.Context, d Dialogue, transcript string) (*Session, error) {
	t, err := d.Start(ctx, transcript)
	if err != nil {
		return nil, err
	}
	s := &Session{Transcript: transcript}
	s.apply(t)
	return s, nil
}

// Answer supplies the user's reply to the pending question and advances the
// session.
func (s *Session) Answer(ctx context.Context, d Dialogue, answer string) error {
	if s.State != StateClarifying {
		return fmt.Errorf("session is not awaiting an answer (state %q)", s.State)
	}
	t, err := d.Respond(ctx, s.ID, answer)
	if err != nil {
		return err
	}
	s.answers = append(s.answers, answer)
	s.apply(t)
	return nil
}

// Skip unilaterally forces the session ready, using the original transcript
// verbatim as the query.
func (s *Session) Skip() {
	s.State = StateReady
	s.Question = ""
	s.enriched = s.Transcript
}

func (s *Session) apply(t Turn) {
	s.State = t.State
	s.Question = t.Question
	if t.SessionID != "" {
		s.ID = t.SessionID
	}
	if t.State == StateReady {
		s.enriched = t.EnrichedQuery
		if s.enriched == "" {
			s.enriched = s.Transcript
		}
	}
}

// Ready reports whether the session has produced its final query.
func (s *Session) Ready() bool { return s.State == StateReady }

// Query returns the enriched query once the session is ready, or the raw
// transcript as the fallback.
func (s *Session) Query() string {
	if s.enriched != "" {
		return s.enriched
	}
	return s.Transcript
}

// Context summarizes the clarification rounds for the submit payload.
func (s *Session) Context() string {
	if len(s.answers) == 0 {
		return ""
	}
	out := "transcript: " + s.Transcript
	for _, a := range s.answers {
		out += "; answer: " + a
	}
	return out
}
