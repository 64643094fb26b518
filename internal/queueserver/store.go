// Package queueserver is a reference implementation of the shared queue
// service both parties synchronize through. It exists so an athlete and a
// coach can run end-to-end against a real deployment-shaped service, and so
// the clients can be tested against real handlers.
package queueserver

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/matsync/matsync/internal/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a job or record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyClaimed is returned when claiming a job that left pending.
var ErrAlreadyClaimed = errors.New("job already claimed")

// ErrTerminal is returned on any attempt to move a job out of a terminal
// state. Terminal states are immutable.
var ErrTerminal = errors.New("job is in a terminal state")

// Store wraps the service's SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the service database in dataDir and runs pending
// migrations. Pass ":memory:" for tests.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "matsync.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Jobs ---

// CreateJob inserts a pending job and returns its assigned id.
func (s *Store) CreateJob(athleteID, queryText, therapyContext string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, athlete_id, query_text, therapy_context, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`,
		id, athleteID, queryText, therapyContext, now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func scanJob(scan func(dest ...any) error) (queue.Job, queue.Result, error) {
	var (
		j          queue.Job
		res        queue.Result
		createdAt  string
		startedAt  sql.NullString
		sourcesRaw string
	)
	err := scan(&j.ID, &j.AthleteID, &j.QueryText, &j.Status, &createdAt, &startedAt,
		&res.Article, &sourcesRaw, &res.RLMSessionID, &res.Error)
	if err != nil {
		return queue.Job{}, queue.Result{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return queue.Job{}, queue.Result{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return queue.Job{}, queue.Result{}, fmt.Errorf("parsing started_at: %w", err)
		}
		j.StartedAt = &t
	}
	if err := json.Unmarshal([]byte(sourcesRaw), &res.Sources); err != nil {
		return queue.Job{}, queue.Result{}, fmt.Errorf("parsing result_sources: %w", err)
	}
	res.Status = j.Status
	j.Error = res.Error
	return j, res, nil
}

const jobColumns = `id, athlete_id, query_text, status, created_at, started_at,
	result_article, result_sources, rlm_session_id, error`

// GetJob returns one job with its full result.
func (s *Store) GetJob(id string) (queue.Job, queue.Result, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, res, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return queue.Job{}, queue.Result{}, ErrNotFound
	}
	return j, res, err
}

func (s *Store) listJobs(where string, args ...any) ([]queue.Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs `+where+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []queue.Job
	for rows.Next() {
		j, _, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListJobs returns all jobs for one athlete.
func (s *Store) ListJobs(athleteID string) ([]queue.Job, error) {
	return s.listJobs("WHERE athlete_id = ?", athleteID)
}

// ListPending returns all unclaimed jobs across the roster.
func (s *Store) ListPending() ([]queue.Job, error) {
	return s.listJobs("WHERE status = 'pending'")
}

// ClaimJob moves a pending job to processing. Claiming a job another actor
// already claimed fails with ErrAlreadyClaimed; terminal jobs with
// ErrTerminal.
func (s *Store) ClaimJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'processing', started_at = ? WHERE id = ? AND status = 'pending'`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if queue.Status(status).Terminal() {
		return ErrTerminal
	}
	return ErrAlreadyClaimed
}

// CompleteJob records the result and moves the job to complete (or error,
// when the completion carries an error message). Terminal jobs are never
// transitioned backward or rewritten.
func (s *Store) CompleteJob(id string, c queue.Completion) error {
	status := string(queue.StatusComplete)
	if c.Error != "" {
		status = string(queue.StatusError)
	}
	sources := "[]"
	if c.Sources != nil {
		b, err := json.Marshal(c.Sources)
		if err != nil {
			return fmt.Errorf("marshalling sources: %w", err)
		}
		sources = string(b)
	}

	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, result_article = ?, result_sources = ?, rlm_session_id = ?, error = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		status, c.Article, sources, c.RLMSessionID, c.Error, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var cur string
	err = s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&cur)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrTerminal
}

// --- Roster ---

// AddAthlete registers (or renames) a roster entry.
func (s *Store) AddAthlete(discordID, displayName string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO roster (discord_id, display_name, added_at) VALUES (?, ?, ?)
		ON CONFLICT(discord_id) DO UPDATE SET display_name = excluded.display_name`,
		discordID, displayName, now,
	)
	return err
}

// ListAthletes returns the roster ordered by registration time.
func (s *Store) ListAthletes() ([]queue.Athlete, error) {
	rows, err := s.db.Query(`SELECT discord_id, display_name FROM roster ORDER BY added_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Athlete
	for rows.Next() {
		var a queue.Athlete
		if err := rows.Scan(&a.DiscordID, &a.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Concepts ---

// PushConcepts upserts concept rows by name, scoped to athleteID, and
// reports how many were created vs updated.
func (s *Store) PushConcepts(athleteID string, concepts []queue.Concept) (queue.PushStats, error) {
	var stats queue.PushStats
	now := time.Now().UTC().Format(time.RFC3339)

	for _, c := range concepts {
		var exists int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM concepts WHERE name = ?`, c.Name).Scan(&exists); err != nil {
			return stats, err
		}

		prereq, leads, counters, related, err := marshalLinkSets(c)
		if err != nil {
			return stats, err
		}
		_, err = s.db.Exec(`
			INSERT INTO concepts (name, athlete_id, category, parent, prerequisites, leads_to, counters, related, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				category = excluded.category, parent = excluded.parent,
				prerequisites = excluded.prerequisites, leads_to = excluded.leads_to,
				counters = excluded.counters, related = excluded.related,
				updated_at = excluded.updated_at`,
			c.Name, athleteID, c.Category, c.Parent, prereq, leads, counters, related, now, now,
		)
		if err != nil {
			return stats, err
		}
		if exists > 0 {
			stats.Updated++
		} else {
			stats.Created++
		}
	}
	return stats, nil
}

func marshalLinkSets(c queue.Concept) (prereq, leads, counters, related string, err error) {
	marshal := func(names []string) (string, error) {
		if names == nil {
			return "[]", nil
		}
		b, err := json.Marshal(names)
		return string(b), err
	}
	if prereq, err = marshal(c.Prerequisites); err != nil {
		return
	}
	if leads, err = marshal(c.LeadsTo); err != nil {
		return
	}
	if counters, err = marshal(c.Counters); err != nil {
		return
	}
	related, err = marshal(c.Related)
	return
}

// ListConcepts returns concepts visible to one athlete: those pushed for
// them plus unscoped (shared) ones.
func (s *Store) ListConcepts(athleteID string) ([]queue.Concept, error) {
	rows, err := s.db.Query(`
		SELECT name, category, parent, prerequisites, leads_to, counters, related
		FROM concepts WHERE athlete_id IN ('', ?) ORDER BY name ASC`, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Concept
	for rows.Next() {
		var c queue.Concept
		var prereq, leads, counters, related string
		if err := rows.Scan(&c.Name, &c.Category, &c.Parent, &prereq, &leads, &counters, &related); err != nil {
			return nil, err
		}
		links := []struct {
			raw string
			dst *[]string
		}{
			{prereq, &c.Prerequisites}, {leads, &c.LeadsTo},
			{counters, &c.Counters}, {related, &c.Related},
		}
		for _, l := range links {
			if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
				return nil, fmt.Errorf("parsing link set for %s: %w", c.Name, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Graphs ---

// SetGraph stores the latest snapshot for an athlete, replacing any prior one.
func (s *Store) SetGraph(athleteID string, snap queue.GraphSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO graphs (athlete_id, snapshot_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(athlete_id) DO UPDATE SET snapshot_json = excluded.snapshot_json, updated_at = excluded.updated_at`,
		athleteID, string(data), now,
	)
	return err
}

// GetGraph returns the stored snapshot for an athlete.
func (s *Store) GetGraph(athleteID string) (queue.GraphSnapshot, error) {
	var raw string
	err := s.db.QueryRow(`SELECT snapshot_json FROM graphs WHERE athlete_id = ?`, athleteID).Scan(&raw)
	if err == sql.ErrNoRows {
		return queue.GraphSnapshot{}, ErrNotFound
	}
	if err != nil {
		return queue.GraphSnapshot{}, err
	}
	var snap queue.GraphSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return queue.GraphSnapshot{}, fmt.Errorf("parsing snapshot: %w", err)
	}
	return snap, nil
}
