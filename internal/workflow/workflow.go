// Package workflow defines the declarative pipeline description: which
// events trigger a run, which jobs exist, what each job's steps do, and
// which failures are swallowed so the pipeline still reaches publish.
package workflow

// Workflow is a parsed pipeline definition.
type Workflow struct {
	Name string          `yaml:"name" json:"name"`
	On   Trigger         `yaml:"on" json:"on"`
	Jobs map[string]*Job `yaml:"jobs" json:"jobs"`
}

// Trigger lists branch filters per event kind. An empty filter list means
// the event never triggers a run.
type Trigger struct {
	Push        []string `yaml:"push,omitempty" json:"push,omitempty"`
	PullRequest []string `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`
}

// Job is a named group of sequential steps. Needs lists jobs that must
// succeed first; jobs with disjoint needs may run concurrently.
type Job struct {
	Name  string   `yaml:"-" json:"-"`
	Needs []string `yaml:"needs,omitempty" json:"needs,omitempty"`
	Steps []Step   `yaml:"steps" json:"steps"`
}

// Step is one unit of job work. Exactly one of Uses (a built-in step kind)
// or Run (a shell command) must be set. With carries kind-specific
// parameters. ContinueOnError records the failure on the run instead of
// failing the job.
type Step struct {
	Name            string            `yaml:"name,omitempty" json:"name,omitempty"`
	Uses            string            `yaml:"uses,omitempty" json:"uses,omitempty"`
	Run             string            `yaml:"run,omitempty" json:"run,omitempty"`
	With            map[string]string `yaml:"with,omitempty" json:"with,omitempty"`
	ContinueOnError bool              `yaml:"continue-on-error,omitempty" json:"continue_on_error,omitempty"`
}

// Built-in step kinds.
const (
	StepCheckout        = "checkout"
	StepSetupEnv        = "setup-env"
	StepRunTests        = "run-tests"
	StepUploadResults   = "upload-results"
	StepDownloadResults = "download-results"
	StepBuildReport     = "build-report"
	StepPublishPages    = "publish-pages"
)

// KnownStepKinds is the set of Uses values Validate accepts.
var KnownStepKinds = map[string]bool{
	StepCheckout:        true,
	StepSetupEnv:        true,
	StepRunTests:        true,
	StepUploadResults:   true,
	StepDownloadResults: true,
	StepBuildReport:     true,
	StepPublishPages:    true,
}

// Event kinds accepted by Triggered.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

// Triggered reports whether the given repository event on the given branch
// should start a run.
func (w *Workflow) Triggered(event, branch string) bool {
	var filters []string
	switch event {
	case EventPush:
		filters = w.On.Push
	case EventPullRequest:
		filters = w.On.PullRequest
	default:
		return false
	}
	for _, b := range filters {
		if b == branch {
			return true
		}
	}
	return false
}

// Order returns job names in a dependency-respecting order. Validate must
// have passed; Order panics on cycles it would have rejected.
func (w *Workflow) Order() []string {
	order := make([]string, 0, len(w.Jobs))
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done

	var visit func(name string)
	visit = func(name string) {
		switch state[name] {
		case 1:
			panic("workflow: cycle in needs graph (run Validate first)")
		case 2:
			return
		}
		state[name] = 1
		for _, dep := range w.Jobs[name].Needs {
			visit(dep)
		}
		state[name] = 2
		order = append(order, name)
	}

	for _, name := range sortedJobNames(w.Jobs) {
		visit(name)
	}
	return order
}
