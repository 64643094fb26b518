package queueserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Config carries the per-actor bearer tokens. AthleteTokens maps token to
// the athlete's platform id; the coach holds a single token.
type Config struct {
	AthleteTokens map[string]string
	CoachToken    string
}

const (
	roleAthlete = "athlete"
	roleCoach   = "coach"
)

// actor is the authenticated caller resolved from the bearer token.
type actor struct {
	role      string
	athleteID string
}

type ctxKey struct{}

// Server holds the handler state: persistent store plus the ephemeral
// therapy sessions, which are never persisted: a restart discards them,
// matching their at-most-one-job lifetime.
type Server struct {
	store    *Store
	cfg      Config
	logger   *slog.Logger
	mu       sync.Mutex
	sessions map[string]*dialogueSession
}

// NewHandler builds the service's HTTP handler.
func NewHandler(store *Store, cfg Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		sessions: map[string]*dialogueSession{},
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth(roleAthlete))
		r.Post("/api/queue/submit", s.handleSubmit)
		r.Get("/api/queue/jobs", s.handleListJobs)
		r.Get("/api/queue/concepts", s.handleListConcepts)
		r.Post("/api/queue/graph/sync", s.handleGraphSync)
		r.Post("/api/therapy/start", s.handleTherapyStart)
		r.Post("/api/therapy/respond", s.handleTherapyRespond)
	})

	// Status and result are readable by the owning athlete and by the coach.
	r.Group(func(r chi.Router) {
		r.Use(s.auth(roleAthlete, roleCoach))
		r.Get("/api/queue/status/{jobID}", s.handleStatus)
		r.Get("/api/queue/result/{jobID}", s.handleResult)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth(roleCoach))
		r.Get("/api/queue/pending", s.handlePending)
		r.Post("/api/queue/claim/{jobID}", s.handleClaim)
		r.Post("/api/queue/complete/{jobID}", s.handleComplete)
		r.Post("/api/queue/concepts/push", s.handlePushConcepts)
		r.Get("/api/queue/graph/{athleteID}", s.handleGetGraph)
		r.Get("/api/coach/roster", s.handleRoster)
		r.Post("/api/coach/roster", s.handleAddAthlete)
	})

	return r
}

// auth resolves the bearer token to an actor and rejects roles not in allow.
func (s *Server) auth(allow ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := s.authenticate(r)
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			for _, role := range allow {
				if a.role == role {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, a)))
					return
				}
			}
			httpError(w, http.StatusForbidden, "authentication_error", "token not permitted for this endpoint")
		})
	}
}

func (s *Server) authenticate(r *http.Request) (actor, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return actor{}, false
	}
	token := auth[len(prefix):]

	if s.cfg.CoachToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CoachToken)) == 1 {
		return actor{role: roleCoach}, true
	}
	for candidate, athleteID := range s.cfg.AthleteTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			return actor{role: roleAthlete, athleteID: athleteID}, true
		}
	}
	return actor{}, false
}

func actorFrom(r *http.Request) actor {
	a, _ := r.Context().Value(ctxKey{}).(actor)
	return a
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
