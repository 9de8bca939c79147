// Package store persists pipeline run history in SQLite: runs, their
// jobs, and per-case outcomes. The report trend and the status command
// read from here.
package store

import (
	"time"

	"greenlight/internal/results"
)

// DefaultDBPath is the default relative path for the SQLite DB
// (per-checkout). Open() creates the parent dir (e.g. .greenlight).
const DefaultDBPath = ".greenlight/greenlight.db"

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobSkipped   = "skipped"
)

// Run is one pipeline execution.
type Run struct {
	ID       string
	Workflow string
	Event    string
	Branch   string
	Marker   string
	Status   string
	// Suppressed lists errors swallowed by continue-on-error steps.
	Suppressed []string
	Summary    results.Summary
	StartedAt  time.Time
	EndedAt    time.Time
}

// Job is one job execution within a run.
type Job struct {
	ID        int64
	RunID     string
	Name      string
	Status    string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// CaseRow is one persisted case outcome.
type CaseRow struct {
	ID         int64
	RunID      string
	CaseID     string
	Title      string
	Feature    string
	Status     string
	DurationMS int64
	Messages   []string
}

// Store is the persistence facade. Engine and CLI use only this
// interface; the implementation is SQLite.
type Store interface {
	CreateRun(run *Run) error
	FinishRun(run *Run) error
	GetRun(runID string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	CreateJob(job *Job) (int64, error)
	FinishJob(job *Job) error
	ListJobsByRun(runID string) ([]*Job, error)

	SaveOutcomes(runID string, outcomes []results.Outcome) error
	ListCasesByRun(runID string) ([]*CaseRow, error)

	Close() error
}
