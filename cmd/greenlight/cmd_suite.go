package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"greenlight/internal/api"
	"greenlight/internal/config"
	"greenlight/internal/logging"
	"greenlight/internal/results"
	"greenlight/internal/suite"
)

var testFlags struct {
	envFile    string
	marker     string
	resultsDir string
	noBundle   bool
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the regression suite against the configured API",
	Long: `Runs the registered cases directly, without a workflow. The exit code
reflects the outcome: non-zero when any executed case failed or broke.`,
	RunE: runTest,
}

func init() {
	f := testCmd.Flags()
	f.StringVar(&testFlags.envFile, "env-file", ".env", "Settings template (API_URL etc.)")
	f.StringVar(&testFlags.marker, "marker", suite.MarkerRegression, "Case marker filter; empty runs everything")
	f.StringVar(&testFlags.resultsDir, "results-dir", "", "Also write a result bundle to this directory")
	f.BoolVar(&testFlags.noBundle, "no-bundle", false, "Skip writing a result bundle")
}

func runTest(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(testFlags.envFile)
	if err != nil {
		return err
	}
	logging.Init(logging.ParseLevel(settings.LogLevel), rootFlags.logFormat)
	logger := logging.New("suite")

	client, err := api.New(settings.APIURL, settings.XChallenger,
		api.WithTimeout(settings.Timeout),
		api.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	started := time.Now()
	runner := suite.NewRunner(client, logger)
	outcomes := runner.Run(cmd.Context(), suite.Registry(), testFlags.marker)
	summary := results.Summarize(outcomes)

	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		fmt.Fprintf(out, "%-8s %s\n", o.Status, o.Title)
		for _, m := range o.Messages {
			fmt.Fprintf(out, "         %s\n", m)
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d failed, %d broken, %d skipped\n",
		summary.Passed, summary.Failed, summary.Broken, summary.Skipped)

	if testFlags.resultsDir != "" && !testFlags.noBundle {
		manifest := results.Manifest{
			RunID:     uuid.NewString(),
			Marker:    testFlags.marker,
			StartedAt: started,
			EndedAt:   time.Now(),
		}
		bundleDir, err := results.Write(testFlags.resultsDir, manifest, outcomes)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Bundle: %s\n", bundleDir)
	}

	if !summary.Clean() {
		return fmt.Errorf("%d case(s) failed, %d broken", summary.Failed, summary.Broken)
	}
	return nil
}
