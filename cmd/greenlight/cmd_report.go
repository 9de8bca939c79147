package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"greenlight/internal/engine"
	"greenlight/internal/logging"
	"greenlight/internal/pages"
	"greenlight/internal/report"
	"greenlight/internal/results"
)

var reportFlags struct {
	resultsDir string
	runID      string
	outDir     string
	historyDir string
	pagesRepo  string
	pagesBr    string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the HTML report from a result bundle",
	Long: `Builds the report for a run (latest bundle by default). Trend history is
merged from --history-dir, or fetched from the pages branch when
--pages-repo is set; a missing history only resets the trend.`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.resultsDir, "results-dir", engine.DefaultResultsDir, "Result bundle directory")
	f.StringVar(&reportFlags.runID, "run", "", "Run ID (default: latest bundle)")
	f.StringVarP(&reportFlags.outDir, "output", "o", engine.DefaultReportDir, "Report output directory")
	f.StringVar(&reportFlags.historyDir, "history-dir", "", "Directory holding the previous report")
	f.StringVar(&reportFlags.pagesRepo, "pages-repo", "", "Fetch previous report from this repository")
	f.StringVar(&reportFlags.pagesBr, "pages-branch", "", "Publish branch (default gh-pages)")
}

func runReport(cmd *cobra.Command, _ []string) error {
	runID := reportFlags.runID
	if runID == "" {
		var err error
		runID, err = results.Latest(reportFlags.resultsDir)
		if err != nil {
			return err
		}
	}
	if runID == "" {
		return fmt.Errorf("no result bundles under %s, run 'greenlight test' first", reportFlags.resultsDir)
	}

	manifest, outcomes, err := results.Read(reportFlags.resultsDir, runID)
	if err != nil {
		return err
	}

	prevDir := reportFlags.historyDir
	if prevDir == "" && reportFlags.pagesRepo != "" {
		tmp, err := os.MkdirTemp("", "greenlight-history-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		opts := pages.Options{
			RepoURL: reportFlags.pagesRepo,
			Branch:  reportFlags.pagesBr,
			Logger:  logging.New("pages"),
		}
		found, err := pages.FetchPrevious(cmd.Context(), opts, tmp)
		if err != nil {
			logging.New("report").Warn("previous report unavailable", "error", err)
		} else if found {
			prevDir = tmp
		}
	}

	if err := report.Generate(manifest, outcomes, prevDir, reportFlags.outDir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report for run %s written to %s\n", runID, reportFlags.outDir)
	return nil
}
