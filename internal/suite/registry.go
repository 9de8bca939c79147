package suite

import (
	"context"
	"net/http"
	"time"

	"greenlight/internal/api"
)

// maxResponseTime is the latency ceiling every case asserts.
const maxResponseTime = 5 * time.Second

// headerVariant is one parameterization of the list-endpoint cases: the
// extra request headers and the expected status. The service answers 200
// for all of them; the variants exercise header normalization and content
// negotiation.
type headerVariant struct {
	id      string
	headers map[string]string
	status  int
}

func headerVariants() []headerVariant {
	return []headerVariant{
		{id: "default-headers", headers: nil, status: http.StatusOK},
		{id: "empty-token", headers: map[string]string{"X-Challenger": ""}, status: http.StatusOK},
		{id: "accept-xml", headers: map[string]string{"X-Challenger": "test_token", "Accept": "application/xml"}, status: http.StatusOK},
		{id: "invalid-authorization", headers: map[string]string{"Authorization": "Bearer invalid"}, status: http.StatusOK},
	}
}

// Registry returns the built-in cases. All carry the regression marker;
// the feature markers allow narrower selection.
func Registry() []Case {
	cases := []Case{
		{
			ID:      "challenges-new-challenger",
			Title:   "Get new challenger token",
			Feature: "Challenges API",
			Markers: []string{MarkerRegression, "challenges"},
			Run: func(ctx context.Context, t *T) {
				_, resp, err := t.Client().NewChallenger(ctx)
				if err != nil {
					t.Broken(err)
					return
				}
				t.Attach(resp)
				t.CheckStatus(resp, http.StatusCreated)
				t.CheckResponseTime(resp, maxResponseTime)
				t.CheckHeadersPresent(resp, api.HeaderChallenger, "Location")
			},
		},
	}

	for _, v := range headerVariants() {
		v := v
		isXML := v.headers["Accept"] == "application/xml"

		cases = append(cases, Case{
			ID:      "challenges-list-" + v.id,
			Title:   "Get all challenges [" + v.id + "]",
			Feature: "Challenges API",
			Markers: []string{MarkerRegression, "challenges"},
			Run: func(ctx context.Context, t *T) {
				resp, err := t.Client().Challenges(ctx, v.headers)
				if err != nil {
					t.Broken(err)
					return
				}
				t.Attach(resp)
				t.CheckStatus(resp, v.status)
				t.CheckResponseTime(resp, maxResponseTime)
				t.CheckHeadersPresent(resp, "Content-Type")
				if resp.StatusCode != http.StatusOK {
					return
				}
				if isXML {
					t.CheckHeaderValues(resp, map[string]string{"Content-Type": "application/xml"})
					t.CheckXMLSchema(resp, &api.ChallengeList{})
				} else {
					t.CheckHeaderValues(resp, map[string]string{"Content-Type": "application/json"})
					t.CheckSchema(resp, &api.ChallengeList{})
				}
				t.CheckBodyKeysPresent(resp, "id", "name", "status")
				t.CheckBodyKeyValues(resp, map[string]any{"id": 59})
			},
		})

		cases = append(cases, Case{
			ID:      "todos-list-" + v.id,
			Title:   "Get all todos [" + v.id + "]",
			Feature: "Todos API",
			Markers: []string{MarkerRegression, "todos"},
			Run: func(ctx context.Context, t *T) {
				resp, err := t.Client().Todos(ctx, v.headers)
				if err != nil {
					t.Broken(err)
					return
				}
				t.Attach(resp)
				t.CheckStatus(resp, v.status)
				t.CheckResponseTime(resp, maxResponseTime)
				t.CheckHeadersPresent(resp, "Content-Type")
				if resp.StatusCode != http.StatusOK {
					return
				}
				if isXML {
					t.CheckHeaderValues(resp, map[string]string{"Content-Type": "application/xml"})
					t.CheckXMLSchema(resp, &api.TodoList{})
					t.CheckBodyKeysPresent(resp, "todo")
				} else {
					t.CheckHeaderValues(resp, map[string]string{"Content-Type": "application/json"})
					t.CheckSchema(resp, &api.TodoList{})
					t.CheckBodyKeysPresent(resp, "todos", "title", "doneStatus")
				}
				t.CheckBodyKeyValues(resp, map[string]any{"id": 7})
			},
		})
	}

	return cases
}
