package queueserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// dialogueSession tracks one clarification exchange. The reference service
// uses a deterministic rule instead of a language model: transcripts with
// enough detail go straight to ready, short ones get one clarifying round
// and the answer is folded into the enriched query.
type dialogueSession struct {
	transcript string
}

const clarifyingThresholdWords = 6

const clarifyingQuestion = "What position or situation was this about, and what was giving you trouble?"

type therapyResponse struct {
	State         string `json:"state"`
	SessionID     string `json:"session_id,omitempty"`
	Question      string `json:"question,omitempty"`
	EnrichedQuery string `json:"enriched_query,omitempty"`
}

func (s *Server) handleTherapyStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "transcript is required")
		return
	}

	if len(strings.Fields(transcript)) >= clarifyingThresholdWords {
		writeJSON(w, therapyResponse{State: "ready", EnrichedQuery: transcript})
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = &dialogueSession{transcript: transcript}
	s.mu.Unlock()

	writeJSON(w, therapyResponse{
		State:     "clarifying",
		SessionID: id,
		Question:  clarifyingQuestion,
	})
}

func (s *Server) handleTherapyRespond(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if ok {
		delete(s.sessions, req.SessionID)
	}
	s.mu.Unlock()
	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "unknown therapy session")
		return
	}

	enriched := sess.transcript
	if answer := strings.TrimSpace(req.Answer); answer != "" {
		enriched = sess.transcript + " — " + answer
	}
	writeJSON(w, therapyResponse{State: "ready", EnrichedQuery: enriched})
}
