package queueserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matsync/matsync/internal/queue"
)

const maxRequestBodySize = 1 << 20 // 1MB

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		QueryText      string `json:"query_text"`
		TherapyContext string `json:"therapy_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.QueryText == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query_text is required")
		return
	}

	id, err := s.store.CreateJob(actorFrom(r).athleteID, req.QueryText, req.TherapyContext)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create job: %v", err)
		return
	}
	s.logger.Info("job submitted", "job_id", id)
	writeJSON(w, map[string]string{"job_id": id})
}

// loadJob fetches a job and enforces that athletes only see their own.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (queue.Job, queue.Result, bool) {
	id := chi.URLParam(r, "jobID")
	j, res, err := s.store.GetJob(id)
	if errors.Is(err, ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "job not found")
		return queue.Job{}, queue.Result{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
		return queue.Job{}, queue.Result{}, false
	}
	a := actorFrom(r)
	if a.role == roleAthlete && j.AthleteID != a.athleteID {
		httpError(w, http.StatusNotFound, "not_found", "job not found")
		return queue.Job{}, queue.Result{}, false
	}
	return j, res, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j, _, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, queue.StatusInfo{Status: j.Status, StartedAt: j.StartedAt})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	_, res, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(actorFrom(r).athleteID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	writeJSON(w, map[string]any{"jobs": jobs})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListPending()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list pending jobs: %v", err)
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	writeJSON(w, map[string]any{"jobs": jobs})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	err := s.store.ClaimJob(id)
	switch {
	case errors.Is(err, ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, ErrAlreadyClaimed):
		httpError(w, http.StatusConflict, "invalid_request_error", "job already claimed")
	case errors.Is(err, ErrTerminal):
		httpError(w, http.StatusConflict, "invalid_request_error", "job is already finished")
	case err != nil:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to claim job: %v", err)
	default:
		s.logger.Info("job claimed", "job_id", id)
		writeJSON(w, map[string]string{"status": "claimed"})
	}
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	id := chi.URLParam(r, "jobID")

	var c queue.Completion
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if c.Article == "" && c.Error == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "result_article or error is required")
		return
	}

	err := s.store.CompleteJob(id, c)
	switch {
	case errors.Is(err, ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, ErrTerminal):
		httpError(w, http.StatusConflict, "invalid_request_error", "job is already finished")
	case err != nil:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to complete job: %v", err)
	default:
		s.logger.Info("job completed", "job_id", id, "errored", c.Error != "")
		writeJSON(w, map[string]string{"status": "completed"})
	}
}

func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.store.ListConcepts(actorFrom(r).athleteID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list concepts: %v", err)
		return
	}
	if concepts == nil {
		concepts = []queue.Concept{}
	}
	writeJSON(w, map[string]any{"concepts": concepts})
}

func (s *Server) handlePushConcepts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		AthleteID string          `json:"athlete_id"`
		Concepts  []queue.Concept `json:"concepts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	for _, c := range req.Concepts {
		if c.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "concept name is required")
			return
		}
	}

	stats, err := s.store.PushConcepts(req.AthleteID, req.Concepts)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to push concepts: %v", err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleGraphSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var snap queue.GraphSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if err := s.store.SetGraph(actorFrom(r).athleteID, snap); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to store snapshot: %v", err)
		return
	}
	writeJSON(w, map[string]string{"status": "synced"})
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	athleteID := chi.URLParam(r, "athleteID")
	snap, err := s.store.GetGraph(athleteID)
	if errors.Is(err, ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "no snapshot for athlete")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load snapshot: %v", err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	athletes, err := s.store.ListAthletes()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list roster: %v", err)
		return
	}
	if athletes == nil {
		athletes = []queue.Athlete{}
	}
	writeJSON(w, map[string]any{"athletes": athletes})
}

func (s *Server) handleAddAthlete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req struct {
		DiscordID   string `json:"discord_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.DiscordID == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "discord_id is required")
		return
	}
	if err := s.store.AddAthlete(req.DiscordID, req.DisplayName); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to add athlete: %v", err)
		return
	}
	writeJSON(w, map[string]string{"status": "added"})
}
