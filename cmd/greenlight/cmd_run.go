package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"greenlight/internal/engine"
	"greenlight/internal/store"
	"greenlight/internal/workflow"
)

var runFlags struct {
	workflowPath string
	event        string
	branch       string
	marker       string
	workDir      string
	resultsDir   string
	reportDir    string
	envFile      string
	dbPath       string
	noStore      bool
	pagesRepo    string
	pagesBranch  string
	tokenEnv     string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow end to end",
	Long: `Executes the workflow's jobs in dependency order. Step failures marked
continue-on-error are recorded on the run and do not fail it; the exit
code reflects only unsuppressed job failures.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.workflowPath, "workflow", "f", DefaultWorkflowPath, "Workflow file (YAML or JSON)")
	f.StringVar(&runFlags.event, "event", "", "Trigger event (push, pull_request); empty runs unconditionally")
	f.StringVar(&runFlags.branch, "branch", "", "Branch the event happened on")
	f.StringVar(&runFlags.marker, "marker", "", "Case marker filter for run-tests (default regression)")
	f.StringVar(&runFlags.workDir, "workdir", "", "Working directory for checkout and run: steps")
	f.StringVar(&runFlags.resultsDir, "results-dir", engine.DefaultResultsDir, "Result bundle directory")
	f.StringVar(&runFlags.reportDir, "report-dir", engine.DefaultReportDir, "Report output directory")
	f.StringVar(&runFlags.envFile, "env-file", ".env", "Settings template for setup-env")
	f.StringVar(&runFlags.dbPath, "db", store.DefaultDBPath, "Run history DB path")
	f.BoolVar(&runFlags.noStore, "no-db", false, "Do not persist run history")
	f.StringVar(&runFlags.pagesRepo, "pages-repo", "", "Repository URL for publish-pages")
	f.StringVar(&runFlags.pagesBranch, "pages-branch", "", "Publish branch (default gh-pages)")
	f.StringVar(&runFlags.tokenEnv, "token-env", "GREENLIGHT_PAGES_TOKEN", "Env var holding the pages push token")
}

func runRun(cmd *cobra.Command, _ []string) error {
	wf, err := workflow.LoadFromPath(runFlags.workflowPath)
	if err != nil {
		return err
	}

	opts := engine.Options{
		WorkDir:      runFlags.workDir,
		ResultsDir:   runFlags.resultsDir,
		ReportDir:    runFlags.reportDir,
		EnvFile:      runFlags.envFile,
		Marker:       runFlags.marker,
		PagesRepoURL: runFlags.pagesRepo,
		PagesBranch:  runFlags.pagesBranch,
		PagesToken:   resolveToken(runFlags.tokenEnv),
	}
	if !runFlags.noStore {
		st, err := store.Open(runFlags.dbPath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}

	run, err := engine.New(wf, opts).Execute(cmd.Context(), runFlags.event, runFlags.branch)
	if err != nil {
		return err
	}
	printRun(cmd, run)
	if run.Failed() {
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}

func printRun(cmd *cobra.Command, run *engine.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Workflow: %s\n", run.Workflow)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	for _, j := range run.Jobs {
		if j.Err != "" {
			fmt.Fprintf(out, "  job %-12s %s (%s)\n", j.Name, j.Status, j.Err)
		} else {
			fmt.Fprintf(out, "  job %-12s %s\n", j.Name, j.Status)
		}
	}
	if run.Summary.Total > 0 {
		fmt.Fprintf(out, "Cases:    %d passed, %d failed, %d broken, %d skipped\n",
			run.Summary.Passed, run.Summary.Failed, run.Summary.Broken, run.Summary.Skipped)
	}
	if len(run.Suppressed) > 0 {
		fmt.Fprintf(out, "Suppressed failures:\n")
		for _, s := range run.Suppressed {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}
	if run.ReportDir != "" {
		if _, err := os.Stat(run.ReportDir); err == nil {
			fmt.Fprintf(out, "Report:   %s\n", run.ReportDir)
		}
	}
}

// resolveToken reads the pages token from the named env var, falling
// back to GITHUB_TOKEN for hosted runners.
func resolveToken(envName string) string {
	if t := os.Getenv(envName); t != "" {
		return t
	}
	return os.Getenv("GITHUB_TOKEN")
}
