package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"greenlight/internal/results"
)

func sampleManifest(runID string) results.Manifest {
	return results.Manifest{
		RunID:    runID,
		Workflow: "regression",
		Event:    "push",
		Branch:   "main",
		Marker:   "regression",
		EndedAt:  time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}
}

func sampleOutcomes() []results.Outcome {
	return []results.Outcome{
		{CaseID: "challenges-01", Title: "mint token", Feature: "Challenges API", Status: results.StatusPassed, DurationMS: 80},
		{CaseID: "todos-01", Title: "list todos", Feature: "Todos API", Status: results.StatusFailed, Messages: []string{"expected status code 200, got 500"}},
	}
}

func readHistory(t *testing.T, dir string) []HistoryEntry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, HistoryFile))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	var history []HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("parse history: %v", err)
	}
	return history
}

func TestGenerateFirstRun(t *testing.T) {
	out := t.TempDir()
	err := Generate(sampleManifest("run-1"), sampleOutcomes(), "", out)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	history := readHistory(t, out)
	if len(history) != 1 || history[0].RunID != "run-1" {
		t.Errorf("history = %+v", history)
	}

	html, err := os.ReadFile(filepath.Join(out, IndexFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	page := string(html)
	for _, want := range []string{"run-1", "mint token", "list todos", "expected status code 200"} {
		if !strings.Contains(page, want) {
			t.Errorf("index.html missing %q", want)
		}
	}

	var summary results.Summary
	data, err := os.ReadFile(filepath.Join(out, SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || summary.Passed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGenerateMergesPreviousHistory(t *testing.T) {
	prev := t.TempDir()
	if err := Generate(sampleManifest("run-1"), sampleOutcomes(), "", prev); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	if err := Generate(sampleManifest("run-2"), sampleOutcomes(), prev, out); err != nil {
		t.Fatal(err)
	}

	history := readHistory(t, out)
	if len(history) != 2 || history[0].RunID != "run-1" || history[1].RunID != "run-2" {
		t.Errorf("history = %+v", history)
	}
}

func TestGenerateMissingHistoryTolerated(t *testing.T) {
	out := t.TempDir()
	// previousDir exists but has no history.json; a malformed one must be
	// equally harmless.
	prev := t.TempDir()
	if err := os.WriteFile(filepath.Join(prev, HistoryFile), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Generate(sampleManifest("run-1"), nil, prev, out); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(readHistory(t, out)) != 1 {
		t.Error("malformed prior history should reset the trend")
	}
}

func TestHistoryCapped(t *testing.T) {
	dir := ""
	var out string
	for i := 0; i < HistoryLimit+5; i++ {
		out = t.TempDir()
		m := sampleManifest(fmt.Sprintf("run-%02d", i))
		if err := Generate(m, nil, dir, out); err != nil {
			t.Fatal(err)
		}
		dir = out
	}
	history := readHistory(t, out)
	if len(history) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(history), HistoryLimit)
	}
	if history[len(history)-1].RunID != fmt.Sprintf("run-%02d", HistoryLimit+4) {
		t.Errorf("last entry = %+v", history[len(history)-1])
	}
}
