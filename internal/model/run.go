package model

import "time"

// Run status constants.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Composition strategy constants.
const (
	StrategyParallel = "parallel"
	StrategyChain    = "chain"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no entries: once reached, a run never changes again.
// queued→error covers runs rejected before they start, such as a chained run
// whose merged input fails validation.
var validTransitions = map[string]map[string]bool{
	StatusQueued: {
		StatusRunning:   true,
		StatusError:     true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusSuccess:   true,
		StatusError:     true,
		StatusTimeout:   true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusSuccess, StatusError, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// ValidStrategy reports whether the given composition strategy is known.
func ValidStrategy(strategy string) bool {
	return strategy == StrategyParallel || strategy == StrategyChain
}

// Run represents one sandboxed execution of a skill version. A multi-skill
// request (parallel or chain) produces one Run per invocation; sibling runs
// share a GroupID.
type Run struct {
	ID             string         `json:"id"`
	GroupID        string         `json:"group_id,omitempty"`
	SkillVersionID string         `json:"skill_version_id"`
	Strategy       string         `json:"strategy"`
	Status         string         `json:"status"`
	Input          map[string]any `json:"input,omitempty"`
	Outputs        map[string]any `json:"outputs,omitempty"`
	Error          string         `json:"error,omitempty"`
	TimeoutS       *int           `json:"timeout_s,omitempty"`
	DurationMS     *int           `json:"duration_ms,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// LogLine represents a single persisted log line captured from a sandbox.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}
