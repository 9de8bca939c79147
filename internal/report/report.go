// Package report renders the history-aware HTML report: the new run's
// outcomes plus a trend merged from the previously published report's
// history.json. Missing history is tolerated so the very first publish
// works on an empty branch.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"greenlight/internal/results"
)

// HistoryLimit caps the trend window.
const HistoryLimit = 20

// Well-known file names inside a report directory.
const (
	IndexFile   = "index.html"
	HistoryFile = "history.json"
	SummaryFile = "summary.json"
)

// HistoryEntry is one run in the trend.
type HistoryEntry struct {
	RunID    string          `json:"run_id"`
	EndedAt  time.Time       `json:"ended_at"`
	Summary  results.Summary `json:"summary"`
	PassRate float64         `json:"pass_rate"`
}

// Generate renders the report for one run into outDir. previousDir is the
// root of the last published report ("" or a directory without
// history.json yields an empty trend).
func Generate(manifest results.Manifest, outcomes []results.Outcome, previousDir, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	history := LoadHistory(previousDir)
	summary := results.Summarize(outcomes)
	history = append(history, HistoryEntry{
		RunID:    manifest.RunID,
		EndedAt:  manifest.EndedAt,
		Summary:  summary,
		PassRate: summary.PassRate(),
	})
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	if err := writeJSON(filepath.Join(outDir, HistoryFile), history); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, SummaryFile), summary); err != nil {
		return err
	}
	return renderHTML(filepath.Join(outDir, IndexFile), manifest, summary, outcomes, history)
}

// LoadHistory reads the trend from dir's history.json. Any failure
// (missing dir, missing file, malformed JSON) yields nil: prior history
// is best-effort by policy.
func LoadHistory(dir string) []HistoryEntry {
	if dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(dir, HistoryFile))
	if err != nil {
		return nil
	}
	var history []HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil
	}
	return history
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("report: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

type pageData struct {
	Manifest results.Manifest
	Summary  results.Summary
	Outcomes []results.Outcome
	History  []HistoryEntry
}

func renderHTML(path string, manifest results.Manifest, summary results.Summary, outcomes []results.Outcome, history []HistoryEntry) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(rate float64) string { return fmt.Sprintf("%.1f%%", rate*100) },
	}).Parse(reportTemplate())
	if err != nil {
		return fmt.Errorf("report: parse template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	data := pageData{Manifest: manifest, Summary: summary, Outcomes: outcomes, History: history}
	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}
