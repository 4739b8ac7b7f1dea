package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rscheiwe/open-skills/internal/model"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS skills (
    name        TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    tags        TEXT,
    created_at  DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS skill_versions (
    id            TEXT PRIMARY KEY,
    skill_name    TEXT NOT NULL REFERENCES skills(name),
    version       TEXT NOT NULL,
    entrypoint    TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    tags          TEXT,
    inputs        TEXT,
    outputs       TEXT,
    allow_network INTEGER NOT NULL DEFAULT 0,
    timeout_s     INTEGER,
    bundle_dir    TEXT NOT NULL,
    checksum      TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    UNIQUE (skill_name, version)
)`,
	`CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    group_id         TEXT,
    skill_version_id TEXT NOT NULL,
    strategy         TEXT NOT NULL,
    status           TEXT NOT NULL,
    input            TEXT,
    outputs          TEXT,
    error            TEXT,
    timeout_s        INTEGER,
    duration_ms      INTEGER,
    created_at       DATETIME NOT NULL,
    started_at       DATETIME,
    finished_at      DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS run_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    stream     TEXT NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (run_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
    id           TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL,
    filename     TEXT NOT NULL,
    key          TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    checksum     TEXT NOT NULL,
    content_type TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    UNIQUE (run_id, filename)
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_group ON runs(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs(run_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id)`,
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not open a
	// second one.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalJSON serializes v for a nullable JSON text column. Nil maps and
// slices are stored as NULL.
func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case []string:
		if t == nil {
			return nil, nil
		}
	case []model.ParamSpec:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column: %w", err)
	}
	return string(b), nil
}

// unmarshalJSON deserializes a nullable JSON text column into out.
func unmarshalJSON(col sql.NullString, out any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

// PutSkillVersion registers a skill version, creating or refreshing the
// owning skill row. Publishing an existing (skill, version) pair returns
// ErrAlreadyExists.
func (s *SQLiteStore) PutSkillVersion(ctx context.Context, v *model.SkillVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM skill_versions WHERE skill_name = ? AND version = ?",
		v.SkillName, v.Version,
	).Scan(&existing)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check existing version: %w", err)
	}

	tags, err := marshalJSON(v.Tags)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO skills (name, description, tags, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description, tags = excluded.tags`,
		v.SkillName, v.Description, tags, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}

	inputs, err := marshalJSON(v.Inputs)
	if err != nil {
		return err
	}
	outputs, err := marshalJSON(v.Outputs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO skill_versions (
			id, skill_name, version, entrypoint, description, tags, inputs,
			outputs, allow_network, timeout_s, bundle_dir, checksum, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SkillName, v.Version, v.Entrypoint, v.Description, tags, inputs,
		outputs, v.AllowNetwork, v.TimeoutS, v.BundleDir, v.Checksum, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert skill version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const skillVersionColumns = `id, skill_name, version, entrypoint, description,
	tags, inputs, outputs, allow_network, timeout_s, bundle_dir, checksum, created_at`

func scanSkillVersion(row interface{ Scan(...any) error }) (*model.SkillVersion, error) {
	v := &model.SkillVersion{}
	var tags, inputs, outputs sql.NullString
	err := row.Scan(
		&v.ID, &v.SkillName, &v.Version, &v.Entrypoint, &v.Description,
		&tags, &inputs, &outputs, &v.AllowNetwork, &v.TimeoutS, &v.BundleDir,
		&v.Checksum, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &v.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(inputs, &v.Inputs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(outputs, &v.Outputs); err != nil {
		return nil, err
	}
	return v, nil
}

// GetSkillVersion retrieves a skill version by ID.
func (s *SQLiteStore) GetSkillVersion(ctx context.Context, id string) (*model.SkillVersion, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+skillVersionColumns+" FROM skill_versions WHERE id = ?", id)
	v, err := scanSkillVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill version: %w", err)
	}
	return v, nil
}

// ResolveSkillVersion retrieves a skill version by (name, version). An empty
// version selects the most recently published one.
func (s *SQLiteStore) ResolveSkillVersion(ctx context.Context, name, version string) (*model.SkillVersion, error) {
	var row *sql.Row
	if version == "" {
		row = s.db.QueryRowContext(ctx,
			"SELECT "+skillVersionColumns+" FROM skill_versions WHERE skill_name = ? ORDER BY created_at DESC, id DESC LIMIT 1",
			name)
	} else {
		row = s.db.QueryRowContext(ctx,
			"SELECT "+skillVersionColumns+" FROM skill_versions WHERE skill_name = ? AND version = ?",
			name, version)
	}
	v, err := scanSkillVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve skill version: %w", err)
	}
	return v, nil
}

// ListSkills returns all registered skills ordered by name.
func (s *SQLiteStore) ListSkills(ctx context.Context) ([]*model.Skill, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, description, tags, created_at FROM skills ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []*model.Skill
	for rows.Next() {
		sk := &model.Skill{}
		var tags sql.NullString
		if err := rows.Scan(&sk.Name, &sk.Description, &tags, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		if err := unmarshalJSON(tags, &sk.Tags); err != nil {
			return nil, err
		}
		skills = append(skills, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skills: %w", err)
	}
	return skills, nil
}

// GetSkill returns the registry entry for the named skill.
func (s *SQLiteStore) GetSkill(ctx context.Context, name string) (*model.Skill, error) {
	sk := &model.Skill{}
	var tags sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT name, description, tags, created_at FROM skills WHERE name = ?", name).
		Scan(&sk.Name, &sk.Description, &tags, &sk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	if err := unmarshalJSON(tags, &sk.Tags); err != nil {
		return nil, err
	}
	return sk, nil
}

// ListSkillVersions returns all versions of the named skill, newest first.
func (s *SQLiteStore) ListSkillVersions(ctx context.Context, name string) ([]*model.SkillVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+skillVersionColumns+" FROM skill_versions WHERE skill_name = ? ORDER BY created_at DESC",
		name)
	if err != nil {
		return nil, fmt.Errorf("list skill versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.SkillVersion
	for rows.Next() {
		v, err := scanSkillVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skill versions: %w", err)
	}
	return versions, nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	input, err := marshalJSON(r.Input)
	if err != nil {
		return err
	}
	outputs, err := marshalJSON(r.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, group_id, skill_version_id, strategy, status, input, outputs,
			error, timeout_s, duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GroupID, r.SkillVersionID, r.Strategy, r.Status, input, outputs,
		r.Error, r.TimeoutS, r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, group_id, skill_version_id, strategy, status, input,
	outputs, error, timeout_s, duration_ms, created_at, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*model.Run, error) {
	r := &model.Run{}
	var input, outputs sql.NullString
	err := row.Scan(
		&r.ID, &r.GroupID, &r.SkillVersionID, &r.Strategy, &r.Status, &input,
		&outputs, &r.Error, &r.TimeoutS, &r.DurationMS, &r.CreatedAt,
		&r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(input, &r.Input); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(outputs, &r.Outputs); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC, along
// with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, total, nil
}

// UpdateRunStatus transitions a run to a new status, enforcing the transition
// table. Entering running sets started_at; entering a terminal status sets
// finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM runs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.IsTerminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetRunInput replaces a run's recorded input. Used for chained runs whose
// effective input is only known once upstream outputs are available.
func (s *SQLiteStore) SetRunInput(ctx context.Context, id string, input map[string]any) error {
	data, err := marshalJSON(input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE runs SET input = ? WHERE id = ?", data, id)
	if err != nil {
		return fmt.Errorf("set run input: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishRun transitions a run to a terminal status and records its outputs,
// error message and duration in one step.
func (s *SQLiteStore) FinishRun(ctx context.Context, id, status string, outputs map[string]any, errMsg string, durationMS int) error {
	if !model.IsTerminal(status) {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM runs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	out, err := marshalJSON(outputs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, outputs = ?, error = ?, duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		status, out, errMsg, durationMS, time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRunStats returns aggregate statistics over all runs and the registry.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		CountByStatus:   make(map[string]int),
		CountByStrategy: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	srows, err := s.db.QueryContext(ctx, "SELECT strategy, COUNT(*) FROM runs GROUP BY strategy")
	if err != nil {
		return nil, fmt.Errorf("count by strategy: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var strategy string
		var count int
		if err := srows.Scan(&strategy, &count); err != nil {
			return nil, fmt.Errorf("scan strategy count: %w", err)
		}
		stats.CountByStrategy[strategy] = count
	}
	if err := srows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy counts: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM runs WHERE duration_ms IS NOT NULL").Scan(&avg); err != nil {
		return nil, fmt.Errorf("avg duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skills").Scan(&stats.Skills); err != nil {
		return nil, fmt.Errorf("count skills: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skill_versions").Scan(&stats.SkillVersions); err != nil {
		return nil, fmt.Errorf("count skill versions: %w", err)
	}

	return stats, nil
}

// AppendLogLine persists one captured log line for a run.
func (s *SQLiteStore) AppendLogLine(ctx context.Context, runID string, seq int, stream, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_logs (run_id, seq, stream, line, created_at) VALUES (?, ?, ?, ?, ?)",
		runID, seq, stream, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns up to limit log lines for a run with seq greater than
// afterSeq, in seq order. limit <= 0 means no limit.
func (s *SQLiteStore) GetLogLines(ctx context.Context, runID string, afterSeq, limit int) ([]model.LogLine, error) {
	q := "SELECT id, run_id, seq, stream, line, created_at FROM run_logs WHERE run_id = ? AND seq > ? ORDER BY seq"
	args := []any{runID, afterSeq}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	lines := []model.LogLine{}
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Stream, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

// PutArtifact persists artifact metadata for a run. A duplicate filename
// within the same run returns ErrAlreadyExists.
func (s *SQLiteStore) PutArtifact(ctx context.Context, a *model.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, run_id, filename, key, size_bytes, checksum, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.Filename, a.Key, a.SizeBytes, a.Checksum, a.ContentType, a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves artifact metadata by (run id, filename).
func (s *SQLiteStore) GetArtifact(ctx context.Context, runID, filename string) (*model.Artifact, error) {
	a := &model.Artifact{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, filename, key, size_bytes, checksum, content_type, created_at
		FROM artifacts WHERE run_id = ? AND filename = ?`, runID, filename,
	).Scan(&a.ID, &a.RunID, &a.Filename, &a.Key, &a.SizeBytes, &a.Checksum, &a.ContentType, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns all artifacts of a run in filename order.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, filename, key, size_bytes, checksum, content_type, created_at
		FROM artifacts WHERE run_id = ? ORDER BY filename`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.Artifact
	for rows.Next() {
		a := &model.Artifact{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.Filename, &a.Key, &a.SizeBytes,
			&a.Checksum, &a.ContentType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}
