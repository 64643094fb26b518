// Package therapy drives the multi-turn clarification dialogue that turns a
// raw capture transcript into an enriched query. All language understanding
// lives in the remote dialogue service; this package only tracks the state of
// one interaction.
package therapy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// State is the dialogue state reported by the service.
type State string

const (
	StateClarifying State = "clarifying"
	StateReady      State = "ready"
)

// ErrServiceUnavailable wraps transport failures reaching the dialogue
// service. Callers must offer a raw-submission fallback (submit the original
// transcript verbatim) rather than blocking the user.
var ErrServiceUnavailable = errors.New("dialogue service unavailable")

// Turn is one service response: either a clarification question or the final
// enriched query.
type Turn struct {
	State         State  `json:"state"`
	SessionID     string `json:"session_id,omitempty"`
	Question      string `json:"question,omitempty"`
	EnrichedQuery string `json:"enriched_query,omitempty"`
}

// Client calls the dialogue service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the dialogue service.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (Turn, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Turn{}, fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return Turn{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Turn{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Turn{}, fmt.Errorf("%w: server returned %d", ErrServiceUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Turn{}, fmt.Errorf("dialogue service rejected request (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var t Turn
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return Turn{}, fmt.Errorf("%w: decoding response: %v", ErrServiceUnavailable, err)
	}
	return t, nil
}

// Start submits the raw transcript and returns the first turn.
func (c *Client) Start(ctx context.Context, transcript string) (Turn, error) {
	return c.post(ctx, "/api/therapy/start", map[string]string{"transcript": transcript})
}

// Respond supplies an answer to the pending clarification question.
func (c *Client) Respond(ctx context.Context, sessionID, answer string) (Turn, error) {
	return c.post(ctx, "/api/therapy/respond", map[string]string{
		"session_id": sessionID,
		"answer":     answer,
	})
}
