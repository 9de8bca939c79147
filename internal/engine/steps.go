package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"greenlight/internal/api"
	"greenlight/internal/config"
	"greenlight/internal/exec"
	"greenlight/internal/pages"
	"greenlight/internal/report"
	"greenlight/internal/results"
	"greenlight/internal/suite"
	"greenlight/internal/workflow"
)

func (e *Engine) runStep(ctx context.Context, state *runState, jobName string, step workflow.Step) error {
	if step.Run != "" {
		return e.stepShell(ctx, state, step)
	}
	switch step.Uses {
	case workflow.StepCheckout:
		return e.stepCheckout(ctx, step)
	case workflow.StepSetupEnv:
		return e.stepSetupEnv(state, step)
	case workflow.StepRunTests:
		return e.stepRunTests(ctx, state, step)
	case workflow.StepUploadResults:
		return e.stepUploadResults(state, step)
	case workflow.StepDownloadResults:
		return e.stepDownloadResults(state, step)
	case workflow.StepBuildReport:
		return e.stepBuildReport(ctx, state, step)
	case workflow.StepPublishPages:
		return e.stepPublishPages(ctx, state, step)
	default:
		return fmt.Errorf("unknown step kind %q", step.Uses)
	}
}

// stepShell runs a run: command line in the working directory with the
// loaded settings exported, so scripted steps see the same environment
// the built-in ones do.
func (e *Engine) stepShell(ctx context.Context, state *runState, step workflow.Step) error {
	env := map[string]string{"GREENLIGHT_RUN_ID": state.run.ID}
	state.mu.Lock()
	if s := state.settings; s != nil {
		env[config.EnvAPIURL] = s.APIURL
		env[config.EnvXChallenger] = s.XChallenger
		env[config.EnvLogLevel] = s.LogLevel
	}
	state.mu.Unlock()
	for k, v := range step.With {
		env[k] = v
	}

	res, err := exec.Command(ctx, step.Run,
		exec.WithWorkingDir(e.opts.WorkDir),
		exec.WithEnv(env),
	)
	if err != nil && res != nil && res.Stderr != "" {
		return fmt.Errorf("%w\n%s", err, res.Stderr)
	}
	return err
}

// stepCheckout clones the repository under test into the working
// directory. Without a repository parameter it only verifies the
// directory exists, covering the usual run-inside-a-checkout case.
func (e *Engine) stepCheckout(ctx context.Context, step workflow.Step) error {
	dir := step.With["path"]
	if dir == "" {
		dir = e.opts.WorkDir
	}
	if dir == "" {
		dir = "."
	}

	repoURL := step.With["repository"]
	if repoURL == "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("checkout: working directory %s: %w", dir, err)
		}
		return nil
	}

	if _, err := git.PlainOpen(dir); err == nil {
		return nil // already checked out
	}
	cloneOpts := &git.CloneOptions{URL: repoURL, Depth: 1}
	if ref := step.With["ref"]; ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		cloneOpts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, cloneOpts); err != nil {
		return fmt.Errorf("checkout %s: %w", repoURL, err)
	}
	return nil
}

func (e *Engine) stepSetupEnv(state *runState, step workflow.Step) error {
	path := step.With["env-file"]
	if path == "" {
		path = e.opts.EnvFile
	}

	settings, err := config.Load(path)
	if err != nil {
		state.mu.Lock()
		injected := state.client != nil
		state.mu.Unlock()
		if injected {
			// An injected client carries its own target; settings are
			// then only used for run: env exports.
			e.logger.Warn("settings unavailable, using injected client", "error", err)
			return nil
		}
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.settings = settings
	if state.client == nil {
		client, err := api.New(settings.APIURL, settings.XChallenger,
			api.WithTimeout(settings.Timeout),
			api.WithLogger(e.logger),
		)
		if err != nil {
			return fmt.Errorf("setup-env: %w", err)
		}
		state.client = client
	}
	return nil
}

// stepRunTests executes the registered cases matching the marker. A
// non-clean summary is a step error so that the workflow's
// continue-on-error decides whether the pipeline goes red here.
func (e *Engine) stepRunTests(ctx context.Context, state *runState, step workflow.Step) error {
	state.mu.Lock()
	client := state.client
	state.mu.Unlock()
	if client == nil {
		return fmt.Errorf("run-tests: no API client, add a setup-env step first")
	}

	marker := step.With["marker"]
	if marker == "" {
		marker = e.opts.Marker
	}
	if marker == "" {
		marker = suite.MarkerRegression
	}

	started := time.Now()
	runner := suite.NewRunner(client, e.logger)
	outcomes := runner.Run(ctx, suite.Registry(), marker)
	ended := time.Now()

	state.mu.Lock()
	state.outcomes = outcomes
	state.manifest = results.Manifest{
		RunID:     state.run.ID,
		Workflow:  state.run.Workflow,
		Event:     state.run.Event,
		Branch:    state.run.Branch,
		Marker:    marker,
		StartedAt: started,
		EndedAt:   ended,
	}
	state.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.SaveOutcomes(state.run.ID, outcomes); err != nil {
			e.logger.Error("persist outcomes", "error", err)
		}
	}

	summary := results.Summarize(outcomes)
	if !summary.Clean() {
		return fmt.Errorf("run-tests: %d failed, %d broken of %d cases",
			summary.Failed, summary.Broken, summary.Total)
	}
	return nil
}

func (e *Engine) stepUploadResults(state *runState, step workflow.Step) error {
	dir := step.With["path"]
	if dir == "" {
		dir = e.opts.ResultsDir
	}

	state.mu.Lock()
	manifest := state.manifest
	outcomes := state.outcomes
	state.mu.Unlock()
	if manifest.RunID == "" {
		return fmt.Errorf("upload-results: no results to upload, add a run-tests step first")
	}

	bundleDir, err := results.Write(dir, manifest, outcomes)
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.run.BundleDir = bundleDir
	state.mu.Unlock()
	return nil
}

// stepDownloadResults loads a bundle written by an earlier job, by run ID
// or latest.
func (e *Engine) stepDownloadResults(state *runState, step workflow.Step) error {
	dir := step.With["path"]
	if dir == "" {
		dir = e.opts.ResultsDir
	}
	runID := step.With["run-id"]
	if runID == "" {
		var err error
		runID, err = results.Latest(dir)
		if err != nil {
			return err
		}
	}
	if runID == "" {
		return fmt.Errorf("download-results: no bundles under %s", dir)
	}

	manifest, outcomes, err := results.Read(dir, runID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.manifest = manifest
	state.outcomes = outcomes
	state.mu.Unlock()
	return nil
}

// stepBuildReport generates the HTML report, merging trend history from
// the published branch when one is configured. History retrieval is
// best-effort: a fresh or unreachable branch only resets the trend.
func (e *Engine) stepBuildReport(ctx context.Context, state *runState, step workflow.Step) error {
	state.mu.Lock()
	manifest := state.manifest
	outcomes := state.outcomes
	prevDir := state.previousReportDir
	state.mu.Unlock()
	if manifest.RunID == "" {
		return fmt.Errorf("build-report: no results, add a run-tests or download-results step first")
	}

	outDir := step.With["path"]
	if outDir == "" {
		outDir = e.opts.ReportDir
	}

	if prevDir == "" {
		if dir := step.With["history-dir"]; dir != "" {
			prevDir = dir
		} else if repoURL := e.pagesRepoURL(step); repoURL != "" {
			tmp, err := os.MkdirTemp("", "greenlight-history-")
			if err != nil {
				return fmt.Errorf("build-report: %w", err)
			}
			defer os.RemoveAll(tmp)
			found, err := pages.FetchPrevious(ctx, e.pagesOptions(step), tmp)
			if err != nil {
				e.logger.Warn("previous report unavailable", "error", err)
			} else if found {
				prevDir = tmp
			}
		}
	}

	if err := report.Generate(manifest, outcomes, prevDir, outDir); err != nil {
		return err
	}
	state.mu.Lock()
	state.run.ReportDir = outDir
	state.mu.Unlock()
	return nil
}

func (e *Engine) stepPublishPages(ctx context.Context, state *runState, step workflow.Step) error {
	if e.pagesRepoURL(step) == "" {
		return fmt.Errorf("publish-pages: no repo-url configured")
	}

	state.mu.Lock()
	reportDir := state.run.ReportDir
	runID := state.run.ID
	state.mu.Unlock()
	if dir := step.With["path"]; dir != "" {
		reportDir = dir
	}
	if _, err := os.Stat(reportDir); err != nil {
		return fmt.Errorf("publish-pages: report directory: %w", err)
	}

	message := fmt.Sprintf("regression report %s", runID)
	return pages.Publish(ctx, e.pagesOptions(step), reportDir, message)
}

func (e *Engine) pagesRepoURL(step workflow.Step) string {
	if url := step.With["repo-url"]; url != "" {
		return url
	}
	return e.opts.PagesRepoURL
}

func (e *Engine) pagesOptions(step workflow.Step) pages.Options {
	branch := step.With["branch"]
	if branch == "" {
		branch = e.opts.PagesBranch
	}
	return pages.Options{
		RepoURL: e.pagesRepoURL(step),
		Branch:  branch,
		Token:   e.opts.PagesToken,
		Logger:  e.logger,
	}
}
