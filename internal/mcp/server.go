// Package mcp exposes the pipeline over the Model Context Protocol so an
// agent can dispatch runs and read their status and report without
// shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"greenlight/internal/engine"
	"greenlight/internal/logging"
	"greenlight/internal/results"
	"greenlight/internal/workflow"
)

// DefaultGetReportTimeout bounds how long get_report waits for a run to
// finish. Tests shorten it.
var DefaultGetReportTimeout = 2 * time.Minute

// Options configures a Server.
type Options struct {
	// WorkflowPath is the default workflow file for run_pipeline.
	WorkflowPath string
	// Engine holds the execution defaults (dirs, pages remote, store).
	Engine engine.Options
}

// Server wraps the MCP SDK server and tracks dispatched runs.
type Server struct {
	MCPServer *sdkmcp.Server
	opts      Options

	mu   sync.Mutex
	runs map[string]*runHandle
	last string // most recently dispatched run ID
}

// runHandle tracks one dispatched run. done closes when Execute returns;
// run and err are only read after that.
type runHandle struct {
	id   string
	done chan struct{}
	run  *engine.Run
	err  error
}

// NewServer creates an MCP server with the pipeline tools registered.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts, runs: map[string]*runHandle{}}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "greenlight", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_pipeline",
		Description: "Dispatch a workflow run. Returns immediately with a run ID; poll get_status or block on get_report.",
	}, s.handleRunPipeline)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Get the status of a run: overall state, per-job states, suppressed step failures and the case summary.",
	}, s.handleGetStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Wait for a run to finish and return its summary, case outcomes and report location.",
	}, s.handleGetReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List runs dispatched through this server, newest first.",
	}, s.handleListRuns)
}

// --- Tool input/output types ---

type runPipelineInput struct {
	WorkflowPath string `json:"workflow_path,omitempty" jsonschema:"workflow file, defaults to the server's configured one"`
	Event        string `json:"event,omitempty" jsonschema:"trigger event (push, pull_request); empty dispatches unconditionally"`
	Branch       string `json:"branch,omitempty" jsonschema:"branch the event happened on"`
	Marker       string `json:"marker,omitempty" jsonschema:"case marker filter for the test step (default regression)"`
}

type runPipelineOutput struct {
	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
}

type getStatusInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"run ID from run_pipeline; empty means the latest run"`
}

type jobStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type getStatusOutput struct {
	RunID      string          `json:"run_id"`
	Running    bool            `json:"running"`
	Status     string          `json:"status,omitempty"`
	Jobs       []jobStatus     `json:"jobs,omitempty"`
	Suppressed []string        `json:"suppressed,omitempty"`
	Summary    results.Summary `json:"summary"`
}

type getReportInput struct {
	RunID     string `json:"run_id,omitempty" jsonschema:"run ID from run_pipeline; empty means the latest run"`
	TimeoutMS int    `json:"timeout_ms,omitempty" jsonschema:"max wait in milliseconds (0 = server default)"`
}

type caseStatus struct {
	CaseID   string   `json:"case_id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Messages []string `json:"messages,omitempty"`
}

type getReportOutput struct {
	RunID      string          `json:"run_id"`
	Status     string          `json:"status"`
	Summary    results.Summary `json:"summary"`
	Suppressed []string        `json:"suppressed,omitempty"`
	Cases      []caseStatus    `json:"cases,omitempty"`
	ReportDir  string          `json:"report_dir,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type listRunsInput struct{}

type listRunsOutput struct {
	Runs []runPipelineOutput `json:"runs"`
}

// --- Tool handlers ---

func (s *Server) handleRunPipeline(ctx context.Context, _ *sdkmcp.CallToolRequest, input runPipelineInput) (*sdkmcp.CallToolResult, runPipelineOutput, error) {
	path := input.WorkflowPath
	if path == "" {
		path = s.opts.WorkflowPath
	}
	if path == "" {
		return nil, runPipelineOutput{}, fmt.Errorf("no workflow configured, pass workflow_path")
	}
	wf, err := workflow.LoadFromPath(path)
	if err != nil {
		return nil, runPipelineOutput{}, err
	}

	if input.Event != "" && !wf.Triggered(input.Event, input.Branch) {
		return nil, runPipelineOutput{}, fmt.Errorf("workflow %s is not triggered by %s on %s", wf.Name, input.Event, input.Branch)
	}

	engOpts := s.opts.Engine
	if input.Marker != "" {
		engOpts.Marker = input.Marker
	}
	engOpts.RunID = uuid.NewString()
	eng := engine.New(wf, engOpts)

	handle := s.dispatch(eng, engOpts.RunID, input.Event, input.Branch)
	return nil, runPipelineOutput{RunID: handle.id, Workflow: wf.Name, Status: "running"}, nil
}

// dispatch starts the run on a background context: a run outlives the
// run_pipeline call that started it.
func (s *Server) dispatch(eng *engine.Engine, runID, event, branch string) *runHandle {
	handle := &runHandle{id: runID, done: make(chan struct{})}
	s.mu.Lock()
	s.runs[handle.id] = handle
	s.last = handle.id
	s.mu.Unlock()

	go func() {
		defer close(handle.done)
		run, err := eng.Execute(context.Background(), event, branch)
		handle.run = run
		handle.err = err
	}()

	logging.New("mcp").Info("run dispatched", "run", handle.id, "event", event, "branch", branch)
	return handle
}

func (s *Server) handleGetStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, input getStatusInput) (*sdkmcp.CallToolResult, getStatusOutput, error) {
	handle, err := s.getHandle(input.RunID)
	if err != nil {
		return nil, getStatusOutput{}, err
	}

	out := getStatusOutput{RunID: handle.id}
	select {
	case <-handle.done:
	default:
		out.Running = true
		return nil, out, nil
	}

	if handle.err != nil && handle.run == nil {
		return nil, getStatusOutput{}, handle.err
	}
	run := handle.run
	out.Status = run.Status
	out.Suppressed = run.Suppressed
	out.Summary = run.Summary
	for _, j := range run.Jobs {
		out.Jobs = append(out.Jobs, jobStatus{Name: j.Name, Status: j.Status, Error: j.Err})
	}
	return nil, out, nil
}

func (s *Server) handleGetReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input getReportInput) (*sdkmcp.CallToolResult, getReportOutput, error) {
	handle, err := s.getHandle(input.RunID)
	if err != nil {
		return nil, getReportOutput{}, err
	}

	timeout := DefaultGetReportTimeout
	if input.TimeoutMS > 0 {
		timeout = time.Duration(input.TimeoutMS) * time.Millisecond
	}
	select {
	case <-handle.done:
	case <-ctx.Done():
		return nil, getReportOutput{}, ctx.Err()
	case <-time.After(timeout):
		return nil, getReportOutput{}, fmt.Errorf("run %s still going after %s", handle.id, timeout)
	}

	if handle.err != nil && handle.run == nil {
		return nil, getReportOutput{}, handle.err
	}
	run := handle.run
	out := getReportOutput{
		RunID:      run.ID,
		Status:     run.Status,
		Summary:    run.Summary,
		Suppressed: run.Suppressed,
		ReportDir:  run.ReportDir,
	}
	if handle.err != nil {
		out.Error = handle.err.Error()
	}
	for _, o := range run.Outcomes {
		out.Cases = append(out.Cases, caseStatus{
			CaseID:   o.CaseID,
			Title:    o.Title,
			Status:   string(o.Status),
			Messages: o.Messages,
		})
	}
	return nil, out, nil
}

func (s *Server) handleListRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	s.mu.Lock()
	handles := make([]*runHandle, 0, len(s.runs))
	for _, h := range s.runs {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	out := listRunsOutput{Runs: []runPipelineOutput{}}
	for _, h := range handles {
		entry := runPipelineOutput{RunID: h.id, Status: "running"}
		select {
		case <-h.done:
			if h.run != nil {
				entry.Status = h.run.Status
				entry.Workflow = h.run.Workflow
			} else {
				entry.Status = "error"
			}
		default:
		}
		out.Runs = append(out.Runs, entry)
	}
	return nil, out, nil
}

func (s *Server) getHandle(id string) (*runHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = s.last
	}
	if id == "" {
		return nil, fmt.Errorf("no runs dispatched yet (call run_pipeline first)")
	}
	handle, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("unknown run %s", id)
	}
	return handle, nil
}

// Shutdown waits for in-flight runs so their artifacts finish writing.
func (s *Server) Shutdown() {
	s.mu.Lock()
	handles := make([]*runHandle, 0, len(s.runs))
	for _, h := range s.runs {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		<-h.done
	}
}
