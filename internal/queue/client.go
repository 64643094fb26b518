package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the athlete-side wrapper around the queue service API.
// All calls carry the athlete's bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given queue service base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(op, err)
	}
	return resp, nil
}

// decodeJSON classifies error responses and decodes successful ones into v.
// Pass nil v to discard the body.
func decodeJSON(op string, resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if msg == "" {
				msg = "invalid or missing bearer token"
			}
			return authErr(op, msg)
		}
		if msg == "" {
			msg = fmt.Sprintf("server returned %d", resp.StatusCode)
		}
		return domainErr(op, msg)
	}

	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return transportErr(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// readErrorMessage extracts the message from the service's error envelope,
// falling back to the raw body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// Submit creates a job from the (possibly enriched) query text and returns
// the service-assigned job id.
func (c *Client) Submit(ctx context.Context, queryText, therapyContext string) (string, error) {
	const op = "submit"
	req := map[string]string{"query_text": queryText}
	if therapyContext != "" {
		req["therapy_context"] = therapyContext
	}
	resp, err := c.do(ctx, op, http.MethodPost, "/api/queue/submit", req)
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := decodeJSON(op, resp, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", &Error{Kind: KindConsistency, Op: op, Message: "service returned no job id"}
	}
	return out.JobID, nil
}

// Status fetches the current lifecycle state of one job.
func (c *Client) Status(ctx context.Context, jobID string) (StatusInfo, error) {
	const op = "status"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/queue/status/"+jobID, nil)
	if err != nil {
		return StatusInfo{}, err
	}
	var out StatusInfo
	if err := decodeJSON(op, resp, &out); err != nil {
		return StatusInfo{}, err
	}
	return out, nil
}

// Result fetches the full outcome of a job, including the article and any
// error message recorded by the coach.
func (c *Client) Result(ctx context.Context, jobID string) (Result, error) {
	const op = "result"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/queue/result/"+jobID, nil)
	if err != nil {
		return Result{}, err
	}
	var out Result
	if err := decodeJSON(op, resp, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

// Jobs lists all jobs belonging to this athlete.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	const op = "jobs"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/queue/jobs", nil)
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

// Concepts fetches the shared concept list for this athlete.
func (c *Client) Concepts(ctx context.Context) ([]Concept, error) {
	const op = "concepts"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/queue/concepts", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Concepts []Concept `json:"concepts"`
	}
	if err := decodeJSON(op, resp, &out); err != nil {
		return nil, err
	}
	return out.Concepts, nil
}

// SyncGraph uploads this athlete's graph snapshot for the coach to pull.
func (c *Client) SyncGraph(ctx context.Context, snap GraphSnapshot) error {
	const op = "graph_sync"
	resp, err := c.do(ctx, op, http.MethodPost, "/api/queue/graph/sync", snap)
	if err != nil {
		return err
	}
	return decodeJSON(op, resp, nil)
}

// Health checks service reachability without authentication side effects.
func (c *Client) Health(ctx context.Context) error {
	const op = "health"
	resp, err := c.do(ctx, op, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return decodeJSON(op, resp, nil)
}
