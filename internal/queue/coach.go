package queue

import (
	"context"
	"net/http"
)

// CoachClient is the coach-side wrapper: roster management, claiming and
// completing jobs across the whole roster, and pushing concepts.
type CoachClient struct {
	c *Client
}

// NewCoachClient creates a CoachClient authenticated with the coach token.
func NewCoachClient(baseURL, token string) *CoachClient {
	return &CoachClient{c: NewClient(baseURL, token)}
}

// Roster lists all athletes registered with this coach.
func (cc *CoachClient) Roster(ctx context.Context) ([]Athlete, error) {
	const op = "roster"
	resp, err := cc.c.do(ctx, op, http.MethodGet, "/api/coach/roster", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Athletes []Athlete `json:"athletes"`
	}
	if err := decodeJSON(op, resp, &out); err != nil {
		return nil, err
	}
	return out.Athletes, nil
}

// AddAthlete registers a new roster entry by platform id.
func (cc *CoachClient) AddAthlete(ctx context.Context, discordID, displayName string) error {
	const op = "roster_add"
	req := map[string]string{"discord_id": discordID}
	if displayName != "" {
		req["display_name"] = displayName
	}
	resp, err := cc.c.do(ctx, op, http.MethodPost, "/api/coach/roster", req)
	if err != nil {
		return err
	}
	return decodeJSON(op, resp, nil)
}

// Pending lists all unclaimed jobs across the roster.
func (cc *CoachClient) Pending(ctx context.Context) ([]Job, error) {
	const op = "pending"
	resp, err := cc.c.do(ctx, op, http.MethodGet, "/api/queue/pending", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := decodeJSON(op, resp, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Claim marks a job as being worked on. Fails with a domain error if another
// actor already claimed it; callers treat claim-then-complete as best-effort
// and still attempt completion (see CompleteAfterClaim).
func (cc *CoachClient) Claim(ctx context.Context, jobID string) error {
	const op = "claim"
	resp, err := cc.c.do(ctx, op, http.MethodPost, "/api/queue/claim/"+jobID, nil)
	if err != nil {
		return err
	}
	return decodeJSON(op, resp, nil)
}

// Complete finishes a job with the generated article and sources.
func (cc *CoachClient) Complete(ctx context.Context, jobID string, result Completion) error {
	const op = "complete"
	resp, err := cc.c.do(ctx, op, http.MethodPost, "/api/queue/complete/"+jobID, result)
	if err != nil {
		return err
	}
	return decodeJSON(op, resp, nil)
}

// CompleteAfterClaim runs the claim-then-complete sequence. Claim and
// complete are not one transaction with the service: if the claim fails the
// completion is still attempted, and its own outcome is authoritative. A
// swallowed claim failure is reported as a partial-completion error alongside
// a successful completion so callers can log it.
func (cc *CoachClient) CompleteAfterClaim(ctx context.Context, jobID string, result Completion) error {
	claimErr := cc.Claim(ctx, jobID)
	if err := cc.Complete(ctx, jobID, result); err != nil {
		return err
	}
	if claimErr != nil {
		return &Error{Kind: KindPartial, Op: "claim", Message: "claim failed but completion succeeded", Err: claimErr}
	}
	return nil
}

// PushConcepts uploads concept nodes for an athlete's shared graph.
func (cc *CoachClient) PushConcepts(ctx context.Context, athleteID string, concepts []Concept) (PushStats, error) {
	const op = "concepts_push"
	req := struct {
		AthleteID string    `json:"athlete_id"`
		Concepts  []Concept `json:"concepts"`
	}{athleteID, concepts}
	resp, err := cc.c.do(ctx, op, http.MethodPost, "/api/queue/concepts/push", req)
	if err != nil {
		return PushStats{}, err
	}
	var out PushStats
	if err := decodeJSON(op, resp, &out); err != nil {
		return PushStats{}, err
	}
	return out, nil
}

// AthleteGraph fetches the stored graph snapshot for one athlete.
func (cc *CoachClient) AthleteGraph(ctx context.Context, athleteID string) (GraphSnapshot, error) {
	const op = "graph"
	resp, err := cc.c.do(ctx, op, http.MethodGet, "/api/queue/graph/"+athleteID, nil)
	if err != nil {
		return GraphSnapshot{}, err
	}
	var out GraphSnapshot
	if err := decodeJSON(op, resp, &out); err != nil {
		return GraphSnapshot{}, err
	}
	return out, nil
}
