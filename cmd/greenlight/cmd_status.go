package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"greenlight/internal/store"
)

var statusFlags struct {
	dbPath string
	runID  string
	limit  int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run history, or the details of one run",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.dbPath, "db", store.DefaultDBPath, "Run history DB path")
	f.StringVar(&statusFlags.runID, "run", "", "Show one run in detail")
	f.IntVar(&statusFlags.limit, "limit", 10, "How many runs to list")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(statusFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer st.Close()

	if statusFlags.runID != "" {
		return printRunDetail(cmd, st, statusFlags.runID)
	}

	runs, err := st.ListRuns(statusFlags.limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet. Run 'greenlight run' to start one.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-9s  %s", r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.Summary.Total > 0 {
			fmt.Fprintf(out, "  %d/%d passed", r.Summary.Passed, r.Summary.Total-r.Summary.Skipped)
		}
		if len(r.Suppressed) > 0 {
			fmt.Fprintf(out, "  (%d suppressed)", len(r.Suppressed))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printRunDetail(cmd *cobra.Command, st store.Store, runID string) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Workflow: %s\n", run.Workflow)
	if run.Event != "" {
		fmt.Fprintf(out, "Trigger:  %s on %s\n", run.Event, run.Branch)
	}
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))

	jobs, err := st.ListJobsByRun(runID)
	if err != nil {
		return err
	}
	if len(jobs) > 0 {
		fmt.Fprintf(out, "Jobs:\n")
		for _, j := range jobs {
			if j.Error != "" {
				fmt.Fprintf(out, "  %-12s %s (%s)\n", j.Name, j.Status, j.Error)
			} else {
				fmt.Fprintf(out, "  %-12s %s\n", j.Name, j.Status)
			}
		}
	}
	if len(run.Suppressed) > 0 {
		fmt.Fprintf(out, "Suppressed failures:\n")
		for _, s := range run.Suppressed {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}

	cases, err := st.ListCasesByRun(runID)
	if err != nil {
		return err
	}
	if len(cases) > 0 {
		fmt.Fprintf(out, "Cases:\n")
		for _, c := range cases {
			fmt.Fprintf(out, "  %-8s %s\n", c.Status, c.Title)
			for _, m := range c.Messages {
				fmt.Fprintf(out, "           %s\n", m)
			}
		}
	}
	return nil
}
