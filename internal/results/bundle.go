package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const manifestName = "manifest.json"

// Write stores a bundle for the manifest's run under dir and returns the
// bundle path. Writing a new bundle also sweeps expired ones.
func Write(dir string, manifest Manifest, outcomes []Outcome) (string, error) {
	if manifest.RunID == "" {
		return "", fmt.Errorf("results: manifest run_id is required")
	}
	manifest.Summary = Summarize(outcomes)

	bundleDir := filepath.Join(dir, manifest.RunID)
	if err := os.MkdirAll(bundleDir, 0755); err != nil {
		return "", fmt.Errorf("results: create bundle dir: %w", err)
	}

	for i, o := range outcomes {
		name := fmt.Sprintf("%s-result.json", o.CaseID)
		if o.CaseID == "" {
			name = fmt.Sprintf("case-%03d-result.json", i)
		}
		if err := writeJSON(filepath.Join(bundleDir, name), o); err != nil {
			return "", err
		}
	}
	if err := writeJSON(filepath.Join(bundleDir, manifestName), manifest); err != nil {
		return "", err
	}

	if err := Sweep(dir, time.Now()); err != nil {
		return "", err
	}
	return bundleDir, nil
}

// Read loads the bundle for runID from dir.
func Read(dir, runID string) (Manifest, []Outcome, error) {
	bundleDir := filepath.Join(dir, runID)

	var manifest Manifest
	if err := readJSON(filepath.Join(bundleDir, manifestName), &manifest); err != nil {
		return Manifest{}, nil, err
	}

	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("results: read bundle dir: %w", err)
	}

	var outcomes []Outcome
	for _, e := range entries {
		if e.IsDir() || e.Name() == manifestName {
			continue
		}
		var o Outcome
		if err := readJSON(filepath.Join(bundleDir, e.Name()), &o); err != nil {
			return Manifest{}, nil, err
		}
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].CaseID < outcomes[j].CaseID })
	return manifest, outcomes, nil
}

// Latest returns the run ID of the most recently ended bundle in dir, or
// "" when dir holds none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("results: read results dir: %w", err)
	}

	var latestID string
	var latestEnd time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var m Manifest
		if err := readJSON(filepath.Join(dir, e.Name(), manifestName), &m); err != nil {
			continue // not a bundle
		}
		if latestID == "" || m.EndedAt.After(latestEnd) {
			latestID = m.RunID
			latestEnd = m.EndedAt
		}
	}
	return latestID, nil
}

// Sweep deletes bundles whose run ended more than RetentionDays before now.
// Directories without a readable manifest are left alone.
func Sweep(dir string, now time.Time) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("results: read results dir: %w", err)
	}

	cutoff := now.AddDate(0, 0, -RetentionDays)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var m Manifest
		path := filepath.Join(dir, e.Name())
		if err := readJSON(filepath.Join(path, manifestName), &m); err != nil {
			continue
		}
		if m.EndedAt.Before(cutoff) {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("results: sweep %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("results: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("results: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("results: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("results: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
