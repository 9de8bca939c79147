package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"greenlight/internal/results"
)

func openTestStore(t *testing.T) *SqlStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".greenlight", "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesParentDir(t *testing.T) {
	openTestStore(t)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run := &Run{ID: "run-1", Workflow: "regression", Event: "push", Branch: "main", Marker: "regression"}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("status = %q, want running", got.Status)
	}

	run.Status = RunSucceeded
	run.Suppressed = []string{"run-tests: 2 case(s) failed"}
	run.Summary = results.Summary{Total: 9, Passed: 7, Failed: 2}
	if err := s.FinishRun(run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunSucceeded || got.EndedAt.IsZero() {
		t.Errorf("run = %+v", got)
	}
	if diff := cmp.Diff(run.Suppressed, got.Suppressed); diff != "" {
		t.Errorf("suppressed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(run.Summary, got.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRunAbsent(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetRun("ghost")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	s := openTestStore(t)
	if err := s.FinishRun(&Run{ID: "ghost", Status: RunFailed}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := s.CreateRun(&Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %v", runs)
	}
}

func TestJobs(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun(&Run{ID: "run-1"}); err != nil {
		t.Fatal(err)
	}

	job := &Job{RunID: "run-1", Name: "run-tests", Status: JobRunning, StartedAt: time.Now()}
	if _, err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job.Status = JobFailed
	job.Error = "suite: 1 broken"
	if err := s.FinishJob(job); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	if _, err := s.CreateJob(&Job{RunID: "run-1", Name: "publish-report", Status: JobSkipped}); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobsByRun("run-1")
	if err != nil {
		t.Fatalf("ListJobsByRun: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %v", jobs)
	}
	if jobs[0].Status != JobFailed || jobs[0].Error == "" || jobs[0].EndedAt.IsZero() {
		t.Errorf("job[0] = %+v", jobs[0])
	}
	if jobs[1].Status != JobSkipped {
		t.Errorf("job[1] = %+v", jobs[1])
	}
}

func TestSaveAndListOutcomes(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun(&Run{ID: "run-1"}); err != nil {
		t.Fatal(err)
	}

	outcomes := []results.Outcome{
		{CaseID: "challenges-01", Title: "mint token", Feature: "Challenges API", Status: results.StatusPassed, DurationMS: 120},
		{CaseID: "todos-01", Title: "list todos", Feature: "Todos API", Status: results.StatusFailed, Messages: []string{"status 500"}},
	}
	if err := s.SaveOutcomes("run-1", outcomes); err != nil {
		t.Fatalf("SaveOutcomes: %v", err)
	}

	cases, err := s.ListCasesByRun("run-1")
	if err != nil {
		t.Fatalf("ListCasesByRun: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("cases = %v", cases)
	}
	if cases[0].CaseID != "challenges-01" || cases[0].Status != string(results.StatusPassed) {
		t.Errorf("case[0] = %+v", cases[0])
	}
	if diff := cmp.Diff([]string{"status 500"}, cases[1].Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}
