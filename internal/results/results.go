// Package results is the raw test-result bundle: one JSON file per case
// outcome plus a run manifest, written under a results directory keyed by
// run ID. Bundles are the artifact handed from the test job to the
// publish job, and old bundles are swept after the retention window.
package results

import (
	"time"

	"greenlight/internal/api"
)

// RetentionDays is how long result bundles are kept before Sweep removes
// them.
const RetentionDays = 5

// Status of one executed case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"  // a check did not hold
	StatusBroken  Status = "broken"  // the case could not run to a verdict
	StatusSkipped Status = "skipped" // excluded by marker filter
)

// Outcome is the result of one case.
type Outcome struct {
	CaseID   string   `json:"case_id"`
	Title    string   `json:"title"`
	Feature  string   `json:"feature,omitempty"`
	Markers  []string `json:"markers,omitempty"`
	Status   Status   `json:"status"`
	Messages []string `json:"messages,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	DurationMS int64     `json:"duration_ms"`

	// Attachments are the recorded request/response exchanges.
	Attachments []api.Exchange `json:"attachments,omitempty"`
}

// Manifest describes one run's bundle.
type Manifest struct {
	RunID     string    `json:"run_id"`
	Workflow  string    `json:"workflow,omitempty"`
	Event     string    `json:"event,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Marker    string    `json:"marker,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Summary   Summary   `json:"summary"`
}

// Summary aggregates outcome statuses.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Broken  int `json:"broken"`
	Skipped int `json:"skipped"`
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Total++
		switch o.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusBroken:
			s.Broken++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// PassRate is the passed share of executed (non-skipped) cases, 0..1.
// A run with nothing executed has rate 0.
func (s Summary) PassRate() float64 {
	executed := s.Total - s.Skipped
	if executed <= 0 {
		return 0
	}
	return float64(s.Passed) / float64(executed)
}

// Clean reports whether no executed case failed or broke.
func (s Summary) Clean() bool { return s.Failed == 0 && s.Broken == 0 }
