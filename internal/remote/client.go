// Package remote is the HTTP client for the sync endpoint.
//
// The server exposes two operations on a single base URL:
//
//	GET  <base>?action=index   -> 200 [{"id", "title", "content", "created_at"}, ...]
//	POST <base>?action=create  -> 200 {"id", ...}   body {"title", "content"}
//
// Every failure is normalised into one of three fault types so that the
// sync engine can pick a retry policy without looking at transport details:
//
//   - *NetworkFault: no response at all
//   - *HTTPFault:    the server answered with a non-2xx status (503 is
//     transient, 401/403 mean authentication is required)
//   - *ParseFault:   the body held no usable JSON payload
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/article"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 8 << 20

	userAgent = "quill-sync/1"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the sync endpoint, e.g. "https://example.org/sync.php".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds each request (default: DefaultTimeout).
	Timeout time.Duration

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client

	// Logger for request activity (default: no-op).
	Logger *zap.Logger
}

// Client talks to the sync endpoint. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	token      string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a client for the endpoint in cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:       base,
		token:      cfg.Token,
		headers:    cfg.Headers,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchAll retrieves the server's authoritative record set.
func (c *Client) FetchAll(ctx context.Context) ([]article.Remote, error) {
	const op = "fetch"

	body, err := c.do(ctx, op, http.MethodGet, "index", nil)
	if err != nil {
		return nil, err
	}

	records, err := parseRecords(body)
	if err != nil {
		return nil, &ParseFault{Op: op, Err: err, Snippet: snippet(body)}
	}

	c.logger.Debug("fetched remote records", zap.Int("count", len(records)))
	return records, nil
}

// CreateOne posts a new record and returns the id the server assigned.
func (c *Client) CreateOne(ctx context.Context, title, content string) (int64, error) {
	const op = "create"

	payload, err := json.Marshal(struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{title, content})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	body, err := c.do(ctx, op, http.MethodPost, "create", payload)
	if err != nil {
		return 0, err
	}

	id, err := parseCreated(body)
	if err != nil {
		return 0, &ParseFault{Op: op, Err: err, Snippet: snippet(body)}
	}

	c.logger.Debug("created remote record", zap.Int64("server_id", id))
	return id, nil
}

// Ping checks that the endpoint's host answers at all. Any HTTP status
// counts as reachable; only transport failures are reported.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkFault{Op: "ping", Err: err}
	}
	_ = resp.Body.Close()
	return nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, action string, payload []byte) ([]byte, error) {
	if exp, ok := TokenExpiry(c.token); ok && !c.now().Before(exp) {
		return nil, &HTTPFault{Op: op, Status: http.StatusUnauthorized, Body: "token expired at " + exp.UTC().Format(time.RFC3339)}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.actionURL(action), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkFault{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkFault{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("sync endpoint responded",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", c.now().Sub(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPFault{Op: op, Status: resp.StatusCode, Body: snippet(bytes.TrimSpace(body))}
	}
	return body, nil
}

func (c *Client) actionURL(action string) string {
	u := *c.base
	q := u.Query()
	q.Set("action", action)
	u.RawQuery = q.Encode()
	return u.String()
}
