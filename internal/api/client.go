// Package api is the HTTP client for the API Challenges service under
// test. Every request and response is logged and recorded as an exchange
// so suite outcomes can attach the raw traffic to the report.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Routes of the service.
const (
	RouteChallenger = "/challenger"
	RouteChallenges = "/challenges"
	RouteTodos      = "/todos"
)

// HeaderChallenger carries the session token on requests and on the
// response to a token mint.
const HeaderChallenger = "X-CHALLENGER"

// Client is a high-level client for the API Challenges service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// New creates a Client for the service at baseURL. The challenger token is
// sent as an X-CHALLENGER header on every request; pass "" before a token
// has been minted.
func New(baseURL, challengerToken string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		token:      challengerToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// SetToken replaces the challenger token used on subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Response is a drained HTTP response with its latency.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration

	// Exchange is the recorded request/response pair for attachments.
	Exchange Exchange
}

// Exchange is the raw traffic of one request/response pair.
type Exchange struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	Status          int               `json:"status"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ElapsedMS       int64             `json:"elapsed_ms"`
}

// Do executes one request against the service. Default headers (the
// challenger token) are applied first; extra headers override them,
// matched case-insensitively.
func (c *Client) Do(ctx context.Context, method, route string, body io.Reader, extra map[string]string) (*Response, error) {
	url := c.baseURL + route
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", method, route, err)
	}

	headers := map[string]string{}
	if c.token != "" {
		headers[strings.ToLower(HeaderChallenger)] = c.token
	}
	if body != nil {
		headers["content-type"] = "application/json"
	}
	for k, v := range extra {
		headers[strings.ToLower(k)] = v
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.InfoContext(ctx, "API request", "method", method, "url", url, "headers", headers)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: do request: %w", method, route, err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, route, err)
	}

	c.logger.InfoContext(ctx, "API response", "method", method, "url", url,
		"status", resp.StatusCode, "elapsed", elapsed)

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		Elapsed:    elapsed,
		Exchange: Exchange{
			Method:          method,
			URL:             url,
			RequestHeaders:  headers,
			Status:          resp.StatusCode,
			ResponseHeaders: flattenHeaders(resp.Header),
			ResponseBody:    string(data),
			ElapsedMS:       elapsed.Milliseconds(),
		},
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}
