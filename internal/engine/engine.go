// Package engine executes a parsed workflow: jobs are dispatched in
// dependency order with independent jobs running concurrently, steps run
// sequentially within a job, and continue-on-error step failures are
// recorded on the run instead of failing it. That recording is what lets
// a red test step still reach the publish step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"greenlight/internal/api"
	"greenlight/internal/config"
	"greenlight/internal/results"
	"greenlight/internal/store"
	"greenlight/internal/workflow"
)

// ErrNotTriggered is returned when the event/branch pair does not match
// the workflow's trigger filters.
var ErrNotTriggered = errors.New("engine: workflow not triggered by event")

// Default artifact locations, relative to the working directory.
const (
	DefaultResultsDir = "build/regression-results"
	DefaultReportDir  = "build/regression-report"
)

// Options configures an Engine.
type Options struct {
	// WorkDir is where checkout and run: steps operate. Empty = cwd.
	WorkDir string
	// ResultsDir is where result bundles are written and read.
	ResultsDir string
	// ReportDir is where the HTML report is generated.
	ReportDir string
	// EnvFile is the settings template loaded by setup-env.
	EnvFile string
	// Marker filters the cases run-tests executes. Empty = workflow default.
	Marker string

	// PagesRepoURL, PagesBranch, PagesToken configure report publishing.
	PagesRepoURL string
	PagesBranch  string
	PagesToken   string

	// RunID fixes the run identifier. Empty = a fresh UUID per Execute,
	// set by callers that need the ID before the run finishes.
	RunID string

	// Store persists run history. Nil disables persistence.
	Store store.Store
	// Client overrides the API client built by setup-env (tests).
	Client *api.Client
	Logger *slog.Logger
}

// Engine runs one workflow.
type Engine struct {
	wf     *workflow.Workflow
	opts   Options
	logger *slog.Logger
}

// New builds an Engine for wf.
func New(wf *workflow.Workflow, opts Options) *Engine {
	if opts.ResultsDir == "" {
		opts.ResultsDir = DefaultResultsDir
	}
	if opts.ReportDir == "" {
		opts.ReportDir = DefaultReportDir
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{wf: wf, opts: opts, logger: opts.Logger}
}

// JobReport is the outcome of one job.
type JobReport struct {
	Name      string
	Status    string // store.Job* values
	Err       string
	StartedAt time.Time
	EndedAt   time.Time
}

// Run is the outcome of one workflow execution.
type Run struct {
	ID       string
	Workflow string
	Event    string
	Branch   string
	Marker   string
	Status   string // store.Run* values

	// Suppressed lists continue-on-error failures, "job/step: error".
	Suppressed []string
	Jobs       []*JobReport
	Summary    results.Summary
	Outcomes   []results.Outcome

	BundleDir string
	ReportDir string

	StartedAt time.Time
	EndedAt   time.Time
}

// Failed reports whether any job failed outright (suppressed step
// failures do not count).
func (r *Run) Failed() bool { return r.Status == store.RunFailed }

// runState is the mutable context steps share within one execution.
// Jobs touching the same fields are serialized by needs ordering, the
// mutex covers the concurrent-jobs case.
type runState struct {
	mu sync.Mutex

	run      *Run
	settings *config.Settings
	client   *api.Client

	manifest results.Manifest
	outcomes []results.Outcome
	// previousReportDir holds the fetched prior report for history merging.
	previousReportDir string
}

func (s *runState) suppress(job, step string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Suppressed = append(s.run.Suppressed, fmt.Sprintf("%s/%s: %v", job, step, err))
}

// Execute runs the workflow for the given event and branch. An empty
// event is a manual dispatch and always runs; otherwise the trigger
// filters decide. The returned Run is non-nil whenever execution started,
// even when its status is failed.
func (e *Engine) Execute(ctx context.Context, event, branch string) (*Run, error) {
	if event != "" && !e.wf.Triggered(event, branch) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotTriggered, event, branch)
	}

	runID := e.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := &Run{
		ID:        runID,
		Workflow:  e.wf.Name,
		Event:     event,
		Branch:    branch,
		Marker:    e.opts.Marker,
		Status:    store.RunRunning,
		ReportDir: e.opts.ReportDir,
		StartedAt: time.Now(),
	}
	state := &runState{run: run, client: e.opts.Client}
	e.logger.Info("run start", "run", run.ID, "workflow", run.Workflow, "event", event, "branch", branch)

	if e.opts.Store != nil {
		if err := e.opts.Store.CreateRun(storeRun(run)); err != nil {
			return nil, fmt.Errorf("engine: persist run: %w", err)
		}
	}

	jobs := e.dispatch(ctx, state)

	run.EndedAt = time.Now()
	run.Status = store.RunSucceeded
	if ctx.Err() != nil {
		run.Status = store.RunCanceled
	}
	for _, j := range jobs {
		run.Jobs = append(run.Jobs, j.report)
		if j.report.Status == store.JobFailed && run.Status == store.RunSucceeded {
			run.Status = store.RunFailed
		}
	}
	run.Summary = results.Summarize(state.outcomes)
	run.Outcomes = state.outcomes

	if e.opts.Store != nil {
		if err := e.opts.Store.FinishRun(storeRun(run)); err != nil {
			return run, fmt.Errorf("engine: persist run result: %w", err)
		}
	}
	e.logger.Info("run done", "run", run.ID, "status", run.Status,
		"suppressed", len(run.Suppressed), "passed", run.Summary.Passed, "failed", run.Summary.Failed)
	return run, ctx.Err()
}

type jobExec struct {
	job    *workflow.Job
	report *JobReport
	done   chan struct{} // closed when the job reached a terminal status
}

// dispatch runs all jobs. Each job waits for its needs, runs its steps
// sequentially, and never aborts the group: a failed job only skips its
// dependents.
func (e *Engine) dispatch(ctx context.Context, state *runState) map[string]*jobExec {
	execs := make(map[string]*jobExec, len(e.wf.Jobs))
	for name, job := range e.wf.Jobs {
		execs[name] = &jobExec{
			job:    job,
			report: &JobReport{Name: name, Status: store.JobPending},
			done:   make(chan struct{}),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, je := range execs {
		g.Go(func() error {
			defer close(je.done)
			for _, need := range je.job.Needs {
				dep := execs[need]
				select {
				case <-dep.done:
				case <-gctx.Done():
					je.report.Status = store.JobSkipped
					je.report.Err = gctx.Err().Error()
					return nil
				}
				if dep.report.Status != store.JobSucceeded {
					je.report.Status = store.JobSkipped
					je.report.Err = fmt.Sprintf("needs %s which did not succeed", need)
					e.logger.Warn("job skipped", "run", state.run.ID, "job", je.report.Name, "reason", je.report.Err)
					return nil
				}
			}
			e.runJob(gctx, state, je)
			return nil
		})
	}
	_ = g.Wait() // job errors are recorded on reports, never returned
	return execs
}

func (e *Engine) runJob(ctx context.Context, state *runState, je *jobExec) {
	rep := je.report
	rep.Status = store.JobRunning
	rep.StartedAt = time.Now()
	logger := e.logger.With("run", state.run.ID, "job", rep.Name)
	logger.Info("job start")

	var jobID int64
	if e.opts.Store != nil {
		id, err := e.opts.Store.CreateJob(&store.Job{
			RunID: state.run.ID, Name: rep.Name, Status: rep.Status, StartedAt: rep.StartedAt,
		})
		if err != nil {
			logger.Error("persist job", "error", err)
		}
		jobID = id
	}

	rep.Status = store.JobSucceeded
	for i, step := range je.job.Steps {
		name := stepLabel(step, i)
		logger.Info("step start", "step", name)
		err := e.runStep(ctx, state, rep.Name, step)
		if err == nil {
			logger.Info("step done", "step", name)
			continue
		}
		if step.ContinueOnError && ctx.Err() == nil {
			state.suppress(rep.Name, name, err)
			logger.Warn("step failed (continuing)", "step", name, "error", err)
			continue
		}
		logger.Error("step failed", "step", name, "error", err)
		rep.Status = store.JobFailed
		rep.Err = fmt.Sprintf("%s: %v", name, err)
		break
	}

	rep.EndedAt = time.Now()
	logger.Info("job done", "status", rep.Status)
	if e.opts.Store != nil && jobID != 0 {
		err := e.opts.Store.FinishJob(&store.Job{
			ID: jobID, RunID: state.run.ID, Name: rep.Name,
			Status: rep.Status, Error: rep.Err, StartedAt: rep.StartedAt, EndedAt: rep.EndedAt,
		})
		if err != nil {
			logger.Error("persist job result", "error", err)
		}
	}
}

func stepLabel(step workflow.Step, idx int) string {
	switch {
	case step.Name != "":
		return step.Name
	case step.Uses != "":
		return step.Uses
	default:
		return fmt.Sprintf("step-%d", idx+1)
	}
}

func storeRun(r *Run) *store.Run {
	return &store.Run{
		ID:         r.ID,
		Workflow:   r.Workflow,
		Event:      r.Event,
		Branch:     r.Branch,
		Marker:     r.Marker,
		Status:     r.Status,
		Suppressed: r.Suppressed,
		Summary:    r.Summary,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
	}
}
