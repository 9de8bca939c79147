package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleWorkflow = `
name: regression
on:
  push: [main]
jobs:
  greet:
    steps:
      - name: say hello
        run: "echo hello"
  after:
    needs: [greet]
    steps:
      - run: "true"
`

func writeSampleWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(sampleWorkflow), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "-f", writeSampleWorkflow(t))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "regression") || !strings.Contains(out, "greet") {
		t.Errorf("output = %q", out)
	}
	if strings.Index(out, "greet") > strings.Index(out, "after") {
		t.Errorf("jobs not in dependency order: %q", out)
	}
}

func TestValidateCommandBadWorkflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte("name: x\njobs: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "validate", "-f", path); err == nil {
		t.Error("expected a validation error for a jobless workflow")
	}
}

func TestRunCommandShellWorkflow(t *testing.T) {
	out, err := execute(t, "run",
		"-f", writeSampleWorkflow(t),
		"--workdir", t.TempDir(),
		"--no-db",
	)
	if err != nil {
		t.Fatalf("run: %v (output %q)", err, out)
	}
	if !strings.Contains(out, "succeeded") {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommandNotTriggered(t *testing.T) {
	_, err := execute(t, "run",
		"-f", writeSampleWorkflow(t),
		"--event", "push", "--branch", "feature/x",
		"--no-db",
	)
	if err == nil {
		t.Error("expected a trigger mismatch error")
	}
}

func TestStatusCommandUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "greenlight.db")
	_, err := execute(t, "status", "--db", db, "--run", "no-such-run")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want a not-found error", err)
	}
}

func TestStatusCommandEmptyHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "greenlight.db")
	out, err := execute(t, "status", "--db", db, "--run", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommandFailureExitsNonZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	wf := "name: x\njobs:\n  broken:\n    steps:\n      - run: \"exit 1\"\n"
	if err := os.WriteFile(path, []byte(wf), 0644); err != nil {
		t.Fatal(err)
	}
	// Flag values persist on rootCmd between Execute calls; reset the
	// trigger pair a previous test may have set.
	out, err := execute(t, "run", "-f", path, "--event", "", "--branch", "", "--no-db")
	if err == nil {
		t.Errorf("expected run failure, output %q", out)
	}
}
