package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a workflow file (YAML or JSON) and returns the parsed,
// validated Workflow.
// Format is detected by extension (.yaml/.yml → YAML, .json → JSON) or by content (first non-whitespace char).
func LoadFromPath(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses a workflow from bytes. ext is the file extension (e.g. ".json", ".yaml") for format hint; empty = detect from content.
func Load(data []byte, ext string) (*Workflow, error) {
	w, err := parse(data, ext)
	if err != nil {
		return nil, err
	}
	for name, job := range w.Jobs {
		job.Name = name
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func parse(data []byte, ext string) (*Workflow, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	switch ext {
	case ".yaml":
		return parseYAML(data)
	case ".json":
		return parseJSON(data)
	}
	// Detect: try JSON first (starts with {), else YAML
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		return parseJSON(data)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	return &w, nil
}

func parseJSON(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow json: %w", err)
	}
	return &w, nil
}

// Validate checks structural invariants: at least one job, every needs
// edge points at a defined job, the needs graph is acyclic, every step
// names exactly one of uses/run, and uses values are known kinds.
func (w *Workflow) Validate() error {
	if len(w.Jobs) == 0 {
		return fmt.Errorf("workflow %q: no jobs defined", w.Name)
	}
	for _, name := range sortedJobNames(w.Jobs) {
		job := w.Jobs[name]
		if len(job.Steps) == 0 {
			return fmt.Errorf("job %q: no steps", name)
		}
		for _, dep := range job.Needs {
			if _, ok := w.Jobs[dep]; !ok {
				return fmt.Errorf("job %q: needs undefined job %q", name, dep)
			}
		}
		for i, step := range job.Steps {
			switch {
			case step.Uses != "" && step.Run != "":
				return fmt.Errorf("job %q step %d: uses and run are mutually exclusive", name, i)
			case step.Uses == "" && step.Run == "":
				return fmt.Errorf("job %q step %d: one of uses or run is required", name, i)
			case step.Uses != "" && !KnownStepKinds[step.Uses]:
				return fmt.Errorf("job %q step %d: unknown step kind %q", name, i, step.Uses)
			}
		}
	}
	return w.checkAcyclic()
}

func (w *Workflow) checkAcyclic() error {
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("workflow %q: cycle through job %q", w.Name, name)
		case 2:
			return nil
		}
		state[name] = 1
		for _, dep := range w.Jobs[name].Needs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = 2
		return nil
	}
	for _, name := range sortedJobNames(w.Jobs) {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func sortedJobNames(jobs map[string]*Job) []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
