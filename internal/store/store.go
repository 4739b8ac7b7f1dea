package store

import (
	"context"
	"errors"

	"github.com/rscheiwe/open-skills/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when publishing a (skill, version) pair or an
// artifact filename that is already registered.
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate execution statistics.
type RunStats struct {
	Total           int            `json:"total"`
	CountByStatus   map[string]int `json:"count_by_status"`
	CountByStrategy map[string]int `json:"count_by_strategy"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
	Skills          int            `json:"skills"`
	SkillVersions   int            `json:"skill_versions"`
}

// Store defines the persistence operations for the skill registry, run
// records, captured logs and artifact metadata.
type Store interface {
	PutSkillVersion(ctx context.Context, v *model.SkillVersion) error
	GetSkillVersion(ctx context.Context, id string) (*model.SkillVersion, error)
	ResolveSkillVersion(ctx context.Context, name, version string) (*model.SkillVersion, error)
	ListSkills(ctx context.Context) ([]*model.Skill, error)
	GetSkill(ctx context.Context, name string) (*model.Skill, error)
	ListSkillVersions(ctx context.Context, name string) ([]*model.SkillVersion, error)

	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	SetRunInput(ctx context.Context, id string, input map[string]any) error
	FinishRun(ctx context.Context, id, status string, outputs map[string]any, errMsg string, durationMS int) error
	GetRunStats(ctx context.Context) (*RunStats, error)

	AppendLogLine(ctx context.Context, runID string, seq int, stream, line string) error
	GetLogLines(ctx context.Context, runID string, afterSeq, limit int) ([]model.LogLine, error)

	PutArtifact(ctx context.Context, a *model.Artifact) error
	GetArtifact(ctx context.Context, runID, filename string) (*model.Artifact, error)
	ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error)

	Ping(ctx context.Context) error
	Close() error
}
