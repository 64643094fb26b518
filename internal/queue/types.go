package queue

import "time"

// Status is the remote lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Rank orders statuses along the lifecycle so local bookkeeping can reject
// regressions (a job never moves backward).
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusComplete, StatusError:
		return 2
	}
	return -1
}

// Job is the unit of work exchanged between athlete and coach.
type Job struct {
	ID        string     `json:"job_id"`
	AthleteID string     `json:"athlete_id,omitempty"`
	QueryText string     `json:"query_text"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// StatusInfo is the response of the status endpoint.
type StatusInfo struct {
	Status    Status     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Source is one reference attached to a generated article.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Result is the full outcome of a job. Error is set when the coach (or the
// generation backend) failed the job; Article/Sources are set on success.
type Result struct {
	Status       Status   `json:"status"`
	Article      string   `json:"result_article,omitempty"`
	Sources      []Source `json:"result_sources,omitempty"`
	RLMSessionID string   `json:"rlm_session_id,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Completion is the payload a coach sends to finish a job. Setting Error
// finishes the job in the error state instead.
type Completion struct {
	Article      string   `json:"result_article"`
	Sources      []Source `json:"result_sources,omitempty"`
	RLMSessionID string   `json:"rlm_session_id,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Concept is a node in the technique knowledge graph. Link sets reference
// other concepts by name.
type Concept struct {
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	Parent        string   `json:"parent,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	LeadsTo       []string `json:"leads_to,omitempty"`
	Counters      []string `json:"counters,omitempty"`
	Related       []string `json:"related,omitempty"`
}

// Athlete is one roster entry on the coach side.
type Athlete struct {
	DiscordID   string `json:"discord_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the platform id.
func (a Athlete) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.DiscordID
}

// TrainingSession is one dated entry in an athlete's graph snapshot.
type TrainingSession struct {
	Date  string `json:"date"`
	Focus string `json:"focus,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// GraphSnapshot is the athlete-side view the coach pulls in bulk: recent
// sessions, open queries, and topics currently being drilled.
type GraphSnapshot struct {
	Sessions []TrainingSession `json:"sessions,omitempty"`
	Queries  []string          `json:"queries,omitempty"`
	Topics   []string          `json:"topics,omitempty"`
}

// PushStats reports the outcome of a concept push.
type PushStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}
