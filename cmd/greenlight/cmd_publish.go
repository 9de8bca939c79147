package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"greenlight/internal/engine"
	"greenlight/internal/logging"
	"greenlight/internal/pages"
)

var publishFlags struct {
	reportDir string
	repoURL   string
	branch    string
	tokenEnv  string
	message   string
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push the built report to the pages branch",
	RunE:  runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishFlags.reportDir, "report-dir", engine.DefaultReportDir, "Report directory to publish")
	f.StringVar(&publishFlags.repoURL, "repo", "", "Repository URL (required)")
	f.StringVar(&publishFlags.branch, "branch", "", "Publish branch (default gh-pages)")
	f.StringVar(&publishFlags.tokenEnv, "token-env", "GREENLIGHT_PAGES_TOKEN", "Env var holding the push token")
	f.StringVar(&publishFlags.message, "message", "", "Commit message")

	_ = publishCmd.MarkFlagRequired("repo")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	opts := pages.Options{
		RepoURL: publishFlags.repoURL,
		Branch:  publishFlags.branch,
		Token:   resolveToken(publishFlags.tokenEnv),
		Logger:  logging.New("pages"),
	}
	if err := pages.Publish(cmd.Context(), opts, publishFlags.reportDir, publishFlags.message); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", publishFlags.reportDir, pages.BranchRef(publishFlags.branch))
	return nil
}
