package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"greenlight/internal/engine"
	"greenlight/internal/logging"
	mcpserver "greenlight/internal/mcp"
	"greenlight/internal/store"
)

var serveFlags struct {
	workflowPath string
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

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout so an agent can dispatch pipeline
runs and read their status and report.

The server monitors for parent process death and self-terminates when
the host disconnects, to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.workflowPath, "workflow", "f", DefaultWorkflowPath, "Default workflow for run_pipeline")
	f.StringVar(&serveFlags.workDir, "workdir", "", "Working directory for checkout and run: steps")
	f.StringVar(&serveFlags.resultsDir, "results-dir", engine.DefaultResultsDir, "Result bundle directory")
	f.StringVar(&serveFlags.reportDir, "report-dir", engine.DefaultReportDir, "Report output directory")
	f.StringVar(&serveFlags.envFile, "env-file", ".env", "Settings template for setup-env")
	f.StringVar(&serveFlags.dbPath, "db", store.DefaultDBPath, "Run history DB path")
	f.BoolVar(&serveFlags.noStore, "no-db", false, "Do not persist run history")
	f.StringVar(&serveFlags.pagesRepo, "pages-repo", "", "Repository URL for publish-pages")
	f.StringVar(&serveFlags.pagesBranch, "pages-branch", "", "Publish branch (default gh-pages)")
	f.StringVar(&serveFlags.tokenEnv, "token-env", "GREENLIGHT_PAGES_TOKEN", "Env var holding the pages push token")
}

func runServe(cmd *cobra.Command, _ []string) error {
	engOpts := engine.Options{
		WorkDir:      serveFlags.workDir,
		ResultsDir:   serveFlags.resultsDir,
		ReportDir:    serveFlags.reportDir,
		EnvFile:      serveFlags.envFile,
		PagesRepoURL: serveFlags.pagesRepo,
		PagesBranch:  serveFlags.pagesBranch,
		PagesToken:   resolveToken(serveFlags.tokenEnv),
	}
	if !serveFlags.noStore {
		st, err := store.Open(serveFlags.dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		engOpts.Store = st
	}

	srv := mcpserver.NewServer(mcpserver.Options{
		WorkflowPath: serveFlags.workflowPath,
		Engine:       engOpts,
	})
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting greenlight MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
