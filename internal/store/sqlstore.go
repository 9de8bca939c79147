package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"greenlight/internal/results"
)

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = 1

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

var _ Store = (*SqlStore)(nil)

// Open opens (or creates) the SQLite DB at path and migrates the schema.
func Open(path string) (*SqlStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying DB.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("store: db schema v%d is newer than this build (v%d)", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	if _, err := s.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("store: apply schema v1: %w", err)
	}
	if version == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("store: record schema version: %w", err)
		}
		return nil
	}
	if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, currentSchemaVersion); err != nil {
		return fmt.Errorf("store: bump schema version: %w", err)
	}
	return nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL DEFAULT '',
	event       TEXT NOT NULL DEFAULT '',
	branch      TEXT NOT NULL DEFAULT '',
	marker      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	suppressed  TEXT NOT NULL DEFAULT '[]',
	total       INTEGER NOT NULL DEFAULT 0,
	passed      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	broken      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL DEFAULT '',
	ended_at    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_cases (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	case_id      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	feature      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	messages     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_run_jobs_run ON run_jobs(run_id);
CREATE INDEX IF NOT EXISTS idx_run_cases_run ON run_cases(run_id);
`

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ss)
	return string(data)
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var ss []string
	_ = json.Unmarshal([]byte(s), &ss)
	return ss
}

// CreateRun inserts a new run row in status running.
func (s *SqlStore) CreateRun(run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, workflow, event, branch, marker, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workflow, run.Event, run.Branch, run.Marker, run.Status, timeStr(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// FinishRun records final status, summary and suppressed errors.
func (s *SqlStore) FinishRun(run *Run) error {
	if run.EndedAt.IsZero() {
		run.EndedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, suppressed = ?, total = ?, passed = ?, failed = ?, broken = ?, skipped = ?, ended_at = ? WHERE id = ?`,
		run.Status, marshalStrings(run.Suppressed),
		run.Summary.Total, run.Summary.Passed, run.Summary.Failed, run.Summary.Broken, run.Summary.Skipped,
		timeStr(run.EndedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish run: run %q not found", run.ID)
	}
	return nil
}

func scanRun(scan func(...any) error) (*Run, error) {
	var r Run
	var suppressed, started, ended string
	err := scan(&r.ID, &r.Workflow, &r.Event, &r.Branch, &r.Marker, &r.Status, &suppressed,
		&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.Broken, &r.Summary.Skipped,
		&started, &ended)
	if err != nil {
		return nil, err
	}
	r.Suppressed = unmarshalStrings(suppressed)
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	return &r, nil
}

const runColumns = `id, workflow, event, branch, marker, status, suppressed, total, passed, failed, broken, skipped, started_at, ended_at`

// GetRun returns one run, or nil when absent.
func (s *SqlStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SqlStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CreateJob inserts a job row and returns its ID.
func (s *SqlStore) CreateJob(job *Job) (int64, error) {
	if job.Status == "" {
		job.Status = JobPending
	}
	res, err := s.db.Exec(
		`INSERT INTO run_jobs (run_id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		job.RunID, job.Name, job.Status, timeStr(job.StartedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("store: create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: job id: %w", err)
	}
	job.ID = id
	return id, nil
}

// FinishJob records a job's final status and error.
func (s *SqlStore) FinishJob(job *Job) error {
	if job.EndedAt.IsZero() {
		job.EndedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`UPDATE run_jobs SET status = ?, error = ?, ended_at = ? WHERE id = ?`,
		job.Status, job.Error, timeStr(job.EndedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("store: finish job: %w", err)
	}
	return nil
}

// ListJobsByRun returns a run's jobs in insertion order.
func (s *SqlStore) ListJobsByRun(runID string) ([]*Job, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, name, status, error, started_at, ended_at FROM run_jobs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		var started, ended string
		if err := rows.Scan(&j.ID, &j.RunID, &j.Name, &j.Status, &j.Error, &started, &ended); err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		j.StartedAt = parseTime(started)
		j.EndedAt = parseTime(ended)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// SaveOutcomes persists case outcomes for a run in one transaction.
func (s *SqlStore) SaveOutcomes(runID string, outcomes []results.Outcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO run_cases (run_id, case_id, title, feature, status, duration_ms, messages) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(runID, o.CaseID, o.Title, o.Feature, string(o.Status), o.DurationMS, marshalStrings(o.Messages)); err != nil {
			return fmt.Errorf("store: save outcome %s: %w", o.CaseID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit outcomes: %w", err)
	}
	return nil
}

// ListCasesByRun returns a run's case rows in insertion order.
func (s *SqlStore) ListCasesByRun(runID string) ([]*CaseRow, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, case_id, title, feature, status, duration_ms, messages FROM run_cases WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list cases: %w", err)
	}
	defer rows.Close()

	var cases []*CaseRow
	for rows.Next() {
		var c CaseRow
		var messages string
		if err := rows.Scan(&c.ID, &c.RunID, &c.CaseID, &c.Title, &c.Feature, &c.Status, &c.DurationMS, &messages); err != nil {
			return nil, fmt.Errorf("store: scan case: %w", err)
		}
		c.Messages = unmarshalStrings(messages)
		cases = append(cases, &c)
	}
	return cases, rows.Err()
}
