package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fieldsync/backend"
	"fieldsync/internal/utils"
)

// DefaultTimeout bounds a single request when the config does not set one
const DefaultTimeout = 30 * time.Second

// TokenSource supplies bearer tokens. ForceRefresh is called once after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client handles HTTP communication with the remote service
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a client rooted at baseURL. tokens may be nil for
// unauthenticated use (health probes).
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: utils.Component("remote"),
	}
}

// BaseURL returns the service root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Envelope is a decoded response body: {success, <entity>, message, ...}
type Envelope map[string]json.RawMessage

// Success reports the envelope's success flag
func (e Envelope) Success() bool {
	var ok bool
	if raw, found := e["success"]; found {
		_ = json.Unmarshal(raw, &ok)
	}
	return ok
}

// Message returns the envelope's message, if any
func (e Envelope) Message() string {
	var msg string
	if raw, found := e["message"]; found {
		_ = json.Unmarshal(raw, &msg)
	}
	return msg
}

// doRequest performs an HTTP request with authentication. A 401 triggers
// one token refresh and one retry.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = jsonData
	}

	var token string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrAuthRequired, err)
		}
		token = t
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode != http.StatusUnauthorized || c.tokens == nil || attempt > 0 {
			return resp, nil
		}

		_ = resp.Body.Close()
		c.log.Warn("unauthorized, refreshing token", "method", method, "endpoint", endpoint)
		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token refresh failed: %v", backend.ErrAuthRequired, err)
		}
	}
}

// call performs a request and decodes the envelope. Transport failures,
// non-2xx statuses and success:false all become *backend.RemoteError.
func (c *Client) call(ctx context.Context, op, method, endpoint string, body interface{}) (Envelope, error) {
	start := time.Now()
	resp, err := c.doRequest(ctx, method, endpoint, body)
	if err != nil {
		if errors.Is(err, backend.ErrAuthRequired) {
			return nil, err
		}
		return nil, backend.NewRemoteError(op, 0, err.Error()).WithError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.NewRemoteError(op, resp.StatusCode, "failed to read response").WithError(err)
	}
	c.log.Debug("request", "op", op, "method", method, "endpoint", endpoint,
		"status", resp.StatusCode, "duration", time.Since(start))

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Message() != "" {
			msg = env.Message()
		}
		return nil, backend.NewRemoteError(op, resp.StatusCode, msg).WithBody(truncate(string(raw), 512))
	}
	if decodeErr != nil {
		return nil, backend.NewRemoteError(op, resp.StatusCode, "invalid response body").
			WithBody(truncate(string(raw), 512)).WithError(decodeErr)
	}
	if !env.Success() {
		msg := env.Message()
		if msg == "" {
			msg = op + " was not successful"
		}
		return nil, backend.NewRemoteError(op, resp.StatusCode, msg)
	}
	return env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Health probes the service. Any 2xx response means reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backend.NewRemoteError("Health", 0, err.Error()).WithError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backend.NewRemoteError("Health", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
