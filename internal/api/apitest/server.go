// Package apitest is an in-process stub of the API Challenges service for
// tests: it mints challenger tokens and serves the challenge and todo
// lists as JSON or, on Accept: application/xml, as XML.
package apitest

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"greenlight/internal/api"
)

// Server wraps an httptest.Server with canned service data.
type Server struct {
	*httptest.Server

	// Challenges and Todos are the payloads served. Mutate before issuing
	// requests.
	Challenges []api.Challenge
	Todos      []api.Todo

	// Fail makes every data route answer 500, for broken-outcome tests.
	Fail atomic.Bool

	requests atomic.Int64
}

// New starts a stub service with a small default dataset. The server is
// shut down by Close (or wire it to t.Cleanup).
func New() *Server {
	s := &Server{
		Challenges: []api.Challenge{
			{ID: 1, Name: "GET /challenges (200)", Description: "Issue a GET request on the `/challenges` end point", Status: true},
			{ID: 2, Name: "GET /todos (200)", Description: "Issue a GET request on the `/todos` end point", Status: false},
			{ID: 59, Name: "POST /challenger (201)", Description: "Issue a POST request on the `/challenger` end point", Status: true},
		},
		Todos: []api.Todo{
			{ID: 1, Title: "scan paperwork", DoneStatus: false, Description: ""},
			{ID: 2, Title: "file paperwork", DoneStatus: true, Description: "in the cabinet"},
			{ID: 7, Title: "process payments", DoneStatus: false, Description: ""},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.RouteChallenger, s.handleChallenger)
	mux.HandleFunc("GET "+api.RouteChallenges, func(w http.ResponseWriter, r *http.Request) {
		s.handleList(w, r, api.ChallengeList{Challenges: s.Challenges})
	})
	mux.HandleFunc("GET "+api.RouteTodos, func(w http.ResponseWriter, r *http.Request) {
		s.handleList(w, r, api.TodoList{Todos: s.Todos})
	})

	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns how many requests the stub has served.
func (s *Server) Requests() int64 { return s.requests.Load() }

func (s *Server) handleChallenger(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	w.Header().Set(api.HeaderChallenger, uuid.NewString())
	w.Header().Set("Location", "/gui/challenges")
	w.WriteHeader(http.StatusCreated)
}

// handleList serves payload as JSON, or as XML on Accept:
// application/xml; the list models carry tags for both.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, payload any) {
	s.requests.Add(1)
	if s.Fail.Load() {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/xml") {
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(payload)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
