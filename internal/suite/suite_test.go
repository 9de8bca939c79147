package suite

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"greenlight/internal/api"
	"greenlight/internal/api/apitest"
	"greenlight/internal/results"
)

func newRunner(t *testing.T) (*Runner, *apitest.Server) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL, "tok", api.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return NewRunner(client, nil), srv
}

func outcomeByID(t *testing.T, outcomes []results.Outcome, id string) results.Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.CaseID == id {
			return o
		}
	}
	t.Fatalf("outcome %q not found", id)
	return results.Outcome{}
}

func TestRegistryPassesAgainstStub(t *testing.T) {
	r, _ := newRunner(t)
	outcomes := r.Run(context.Background(), Registry(), MarkerRegression)

	if len(outcomes) != len(Registry()) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(Registry()))
	}
	for _, o := range outcomes {
		if o.Status != results.StatusPassed {
			t.Errorf("case %s: status %s, messages %v", o.CaseID, o.Status, o.Messages)
		}
		if len(o.Attachments) == 0 {
			t.Errorf("case %s: no attachments recorded", o.CaseID)
		}
	}
}

func TestMarkerFilterSkips(t *testing.T) {
	r, srv := newRunner(t)
	outcomes := r.Run(context.Background(), Registry(), "todos")

	sawSkipped, sawExecuted := false, false
	for _, o := range outcomes {
		switch o.Status {
		case results.StatusSkipped:
			sawSkipped = true
		default:
			sawExecuted = true
			if o.Feature != "Todos API" {
				t.Errorf("executed non-todos case %s", o.CaseID)
			}
		}
	}
	if !sawSkipped || !sawExecuted {
		t.Errorf("expected a mix of skipped and executed cases")
	}
	// Skipped cases must not hit the service.
	if got := srv.Requests(); got != 4 {
		t.Errorf("stub served %d requests, want 4 (one per todos variant)", got)
	}
}

func TestServerErrorsFailButDoNotAbort(t *testing.T) {
	r, srv := newRunner(t)
	srv.Fail.Store(true)

	outcomes := r.Run(context.Background(), Registry(), MarkerRegression)
	summary := results.Summarize(outcomes)
	if summary.Failed == 0 {
		t.Error("expected failed outcomes when the service errors")
	}
	// The token mint still works; the run covers every case regardless.
	if summary.Total != len(Registry()) {
		t.Errorf("total = %d, want %d", summary.Total, len(Registry()))
	}
	failed := outcomeByID(t, outcomes, "todos-list-default-headers")
	if failed.Status != results.StatusFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}
	if len(failed.Messages) == 0 {
		t.Error("failed outcome should carry messages")
	}
}

func TestUnreachableServiceIsBroken(t *testing.T) {
	client, err := api.New("http://127.0.0.1:1", "tok", api.WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(client, nil)

	outcomes := r.Run(context.Background(), Registry()[:1], MarkerRegression)
	if outcomes[0].Status != results.StatusBroken {
		t.Errorf("status = %s, want broken", outcomes[0].Status)
	}
}

func TestPanicInCaseIsBroken(t *testing.T) {
	r, _ := newRunner(t)
	cases := []Case{{
		ID:      "panicky",
		Markers: []string{MarkerRegression},
		Run:     func(ctx context.Context, t *T) { panic("boom") },
	}}
	outcomes := r.Run(context.Background(), cases, MarkerRegression)
	if outcomes[0].Status != results.StatusBroken {
		t.Errorf("status = %s, want broken", outcomes[0].Status)
	}
}

func TestBrokenWinsOverFailures(t *testing.T) {
	tt := &T{}
	tt.Failf("first failure")
	tt.Broken(errors.New("transport down"))
	tt.Broken(errors.New("second, ignored"))
	if tt.err.Error() != "transport down" {
		t.Errorf("first broken error should win, got %v", tt.err)
	}
}

func TestChecks(t *testing.T) {
	resp := &api.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:       []byte(`{"challenges":[{"id":59,"name":"x","description":"","status":true}]}`),
		Elapsed:    time.Millisecond,
	}

	t.Run("all pass", func(t *testing.T) {
		tt := &T{}
		tt.CheckStatus(resp, 200)
		tt.CheckResponseTime(resp, time.Second)
		tt.CheckHeadersPresent(resp, "Content-Type")
		tt.CheckHeaderValues(resp, map[string]string{"Content-Type": "application/json"})
		tt.CheckBodyKeysPresent(resp, "challenges", "id")
		tt.CheckBodyKeyValues(resp, map[string]any{"id": 59, "status": true})
		tt.CheckSchema(resp, &api.ChallengeList{})
		if len(tt.failures) != 0 {
			t.Errorf("unexpected failures: %v", tt.failures)
		}
	})

	t.Run("each failure recorded", func(t *testing.T) {
		tt := &T{}
		tt.CheckStatus(resp, 201)
		tt.CheckResponseTime(resp, time.Microsecond)
		tt.CheckHeadersPresent(resp, "X-Missing")
		tt.CheckBodyKeysPresent(resp, "ghost")
		tt.CheckBodyKeyValues(resp, map[string]any{"id": 1})
		if len(tt.failures) != 5 {
			t.Errorf("failures = %v, want 5 entries", tt.failures)
		}
	})

	t.Run("schema rejects unknown fields", func(t *testing.T) {
		tt := &T{}
		bad := &api.Response{Body: []byte(`{"challenges":[],"extra":1}`)}
		tt.CheckSchema(bad, &api.ChallengeList{})
		if len(tt.failures) != 1 {
			t.Errorf("failures = %v", tt.failures)
		}
	})

	t.Run("xml bodies searched by element", func(t *testing.T) {
		tt := &T{}
		xmlResp := &api.Response{
			Headers: http.Header{"Content-Type": []string{"application/xml"}},
			Body:    []byte(`<todos><todo><id>2</id><title>file paperwork</title></todo></todos>`),
		}
		tt.CheckBodyKeysPresent(xmlResp, "todo", "title")
		tt.CheckBodyKeyValues(xmlResp, map[string]any{"id": 2, "title": "file paperwork"})
		if len(tt.failures) != 0 {
			t.Errorf("unexpected failures: %v", tt.failures)
		}
	})

	t.Run("xml schema decodes typed model", func(t *testing.T) {
		tt := &T{}
		xmlResp := &api.Response{
			Headers: http.Header{"Content-Type": []string{"application/xml"}},
			Body:    []byte(`<todos><todo><id>7</id><title>process payments</title><doneStatus>false</doneStatus><description></description></todo></todos>`),
		}
		var list api.TodoList
		tt.CheckXMLSchema(xmlResp, &list)
		if len(tt.failures) != 0 {
			t.Fatalf("unexpected failures: %v", tt.failures)
		}
		if len(list.Todos) != 1 || list.Todos[0].ID != 7 {
			t.Errorf("decoded todos = %+v", list.Todos)
		}
	})

	t.Run("xml schema rejects malformed body", func(t *testing.T) {
		tt := &T{}
		bad := &api.Response{Body: []byte(`<todos><todo><id>7</id>`)}
		tt.CheckXMLSchema(bad, &api.TodoList{})
		if len(tt.failures) != 1 {
			t.Errorf("failures = %v", tt.failures)
		}
	})
}
