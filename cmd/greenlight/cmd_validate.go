package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"greenlight/internal/workflow"
)

var validateFlags struct {
	workflowPath string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate a workflow file",
	RunE:  runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateFlags.workflowPath, "workflow", "f", DefaultWorkflowPath, "Workflow file (YAML or JSON)")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	wf, err := workflow.LoadFromPath(validateFlags.workflowPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workflow: %s\n", wf.Name)
	if len(wf.On.Push) > 0 {
		fmt.Fprintf(out, "On push:  %s\n", strings.Join(wf.On.Push, ", "))
	}
	if len(wf.On.PullRequest) > 0 {
		fmt.Fprintf(out, "On PR:    %s\n", strings.Join(wf.On.PullRequest, ", "))
	}
	fmt.Fprintf(out, "Jobs (%d, in order):\n", len(wf.Jobs))
	for _, name := range wf.Order() {
		job := wf.Jobs[name]
		if len(job.Needs) > 0 {
			fmt.Fprintf(out, "  %s (needs %s): %d steps\n", name, strings.Join(job.Needs, ", "), len(job.Steps))
		} else {
			fmt.Fprintf(out, "  %s: %d steps\n", name, len(job.Steps))
		}
	}
	return nil
}
