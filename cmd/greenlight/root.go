package main

import (
	"github.com/spf13/cobra"

	"greenlight/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// DefaultWorkflowPath is where run and validate look for the pipeline
// definition.
const DefaultWorkflowPath = ".greenlight/workflow.yaml"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "greenlight",
	Short: "Regression pipeline for the API Challenges service",
	Long: "Greenlight runs the regression suite against the API under test,\n" +
		"bundles the results, builds a history-aware HTML report and publishes\nit to a pages branch.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(rootFlags.logLevel), rootFlags.logFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}
