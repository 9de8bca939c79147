package api

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
)

// Challenge is one entry of the service's challenge list.
type Challenge struct {
	ID          int    `json:"id" xml:"id"`
	Name        string `json:"name" xml:"name"`
	Description string `json:"description" xml:"description"`
	Status      bool   `json:"status" xml:"status"`
}

// ChallengeList is the GET /challenges payload, JSON or XML.
type ChallengeList struct {
	XMLName    xml.Name    `json:"-" xml:"challenges"`
	Challenges []Challenge `json:"challenges" xml:"challenge"`
}

// Todo is one entry of the service's todo list.
type Todo struct {
	ID          int    `json:"id" xml:"id"`
	Title       string `json:"title" xml:"title"`
	DoneStatus  bool   `json:"doneStatus" xml:"doneStatus"`
	Description string `json:"description" xml:"description"`
}

// TodoList is the GET /todos payload, JSON or XML.
type TodoList struct {
	XMLName xml.Name `json:"-" xml:"todos"`
	Todos   []Todo   `json:"todos" xml:"todo"`
}

// NewChallenger mints a fresh challenger session (POST /challenger). The
// service returns the token in the X-CHALLENGER response header.
func (c *Client) NewChallenger(ctx context.Context) (string, *Response, error) {
	resp, err := c.Do(ctx, http.MethodPost, RouteChallenger, nil, nil)
	if err != nil {
		return "", nil, err
	}
	token := resp.Headers.Get(HeaderChallenger)
	if resp.StatusCode == http.StatusCreated && token == "" {
		return "", resp, fmt.Errorf("api: challenger created but %s header missing", HeaderChallenger)
	}
	return token, resp, nil
}

// Challenges fetches the challenge list (GET /challenges). extra headers
// override the client defaults per call.
func (c *Client) Challenges(ctx context.Context, extra map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, RouteChallenges, nil, extra)
}

// Todos fetches the todo list (GET /todos). extra headers override the
// client defaults per call.
func (c *Client) Todos(ctx context.Context, extra map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, RouteTodos, nil, extra)
}
