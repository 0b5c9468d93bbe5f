// Package shopdex is a typed HTTP client for the shopdex search API.
package shopdex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client talks to a shopdex server.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopdex: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Search runs one search turn.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("shopdex: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("shopdex: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp SearchResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Suggest returns completions for the typed text. A request superseded by a
// newer one in the same session returns (nil, nil).
func (c *Client) Suggest(ctx context.Context, q, sessionID string) ([]string, error) {
	params := url.Values{"q": {q}}
	if sessionID != "" {
		params.Set("session_id", sessionID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/suggest?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("shopdex: build request: %w", err)
	}

	var resp SuggestResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// Health reports server component health. A degraded server returns the
// report and no error; only transport failures error.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("shopdex: build request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("shopdex: health request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	var report HealthReport
	if err := json.NewDecoder(httpResp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("shopdex: decode health response: %w", err)
	}
	return &report, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("shopdex: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("shopdex: decode response: %w", err)
	}
	return nil
}
