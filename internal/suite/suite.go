// Package suite is the regression harness: a registry of cases executed
// against the API under test, each producing an outcome with recorded
// request/response attachments. A case never aborts the run; check
// failures mark it failed, harness errors mark it broken.
package suite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"greenlight/internal/api"
	"greenlight/internal/results"
)

// MarkerRegression tags the cases the CI pipeline runs.
const MarkerRegression = "regression"

// Case is one executable test.
type Case struct {
	ID      string
	Title   string
	Feature string
	Markers []string
	Run     func(ctx context.Context, t *T)
}

// T is the per-case context: the client, collected check failures, and
// attachments.
type T struct {
	client   *api.Client
	failures []string
	attached []api.Exchange
	err      error
}

// Client returns the API client for the case.
func (t *T) Client() *api.Client { return t.client }

// Attach records an exchange for the case's report attachments.
func (t *T) Attach(resp *api.Response) {
	if resp != nil {
		t.attached = append(t.attached, resp.Exchange)
	}
}

// Failf records a check failure. The case keeps running.
func (t *T) Failf(format string, args ...any) {
	t.failures = append(t.failures, fmt.Sprintf(format, args...))
}

// Broken marks the case as unable to reach a verdict (transport error,
// malformed response). The first broken error wins.
func (t *T) Broken(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Runner executes cases and produces outcomes.
type Runner struct {
	client *api.Client
	logger *slog.Logger
}

// NewRunner builds a Runner. logger may be nil.
func NewRunner(client *api.Client, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, logger: logger}
}

// Run executes every case matching marker ("" = all) and returns one
// outcome per case, skipped cases included. The suite always runs to the
// end; nothing a case does stops its siblings.
func (r *Runner) Run(ctx context.Context, cases []Case, marker string) []results.Outcome {
	outcomes := make([]results.Outcome, 0, len(cases))
	for _, c := range cases {
		outcomes = append(outcomes, r.runCase(ctx, c, marker))
	}
	return outcomes
}

func (r *Runner) runCase(ctx context.Context, c Case, marker string) results.Outcome {
	out := results.Outcome{
		CaseID:  c.ID,
		Title:   c.Title,
		Feature: c.Feature,
		Markers: c.Markers,
	}
	if marker != "" && !slices.Contains(c.Markers, marker) {
		out.Status = results.StatusSkipped
		return out
	}

	r.logger.Info("case start", "case", c.ID, "title", c.Title)
	t := &T{client: r.client}
	out.StartedAt = time.Now()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Broken(fmt.Errorf("panic: %v", rec))
			}
		}()
		c.Run(ctx, t)
	}()

	out.StoppedAt = time.Now()
	out.DurationMS = out.StoppedAt.Sub(out.StartedAt).Milliseconds()
	out.Attachments = t.attached

	switch {
	case t.err != nil:
		out.Status = results.StatusBroken
		out.Messages = append([]string{t.err.Error()}, t.failures...)
	case len(t.failures) > 0:
		out.Status = results.StatusFailed
		out.Messages = t.failures
	default:
		out.Status = results.StatusPassed
	}
	r.logger.Info("case done", "case", c.ID, "status", out.Status, "duration_ms", out.DurationMS)
	return out
}
