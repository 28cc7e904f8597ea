// Package api is the REST client for the chat server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/metrics"
	"go.uber.org/zap"
)

// RequestIDHeader carries a per-request uuid for server-side correlation.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// TokenClearer is implemented by token sources that can forget a rejected token.
type TokenClearer interface {
	Clear() error
}

// StaticToken is a fixed TokenSource.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() string { return string(s) }

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// OnUnauthorized runs after a 401 once the stored token was cleared.
	OnUnauthorized func()
}

// Client talks to the chat server's REST API.
type Client struct {
	baseURL        string
	tokens         TokenSource
	httpClient     *http.Client
	log            *zap.Logger
	metrics        *metrics.Metrics
	onUnauthorized func()
}

// New builds a Client. BaseURL is the API root, e.g. http://localhost:8000/api.
func New(opts Options) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		tokens:         opts.Tokens,
		httpClient:     opts.HTTPClient,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		onUnauthorized: opts.OnUnauthorized,
	}
	if c.tokens == nil {
		c.tokens = StaticToken("")
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	c.log = logging.OrNop(c.log)
	return c
}

// SetOnUnauthorized replaces the 401 callback.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	took := time.Since(start)
	c.metrics.ObserveAPIRequest(method, resp.StatusCode, took)
	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("took", took),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: readDetail(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized()
		}
		return herr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) unauthorized() {
	if clearer, ok := c.tokens.(TokenClearer); ok {
		if err := clearer.Clear(); err != nil {
			c.log.Warn("clear rejected token", zap.Error(err))
		}
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// readDetail extracts FastAPI's {"detail": ...} or falls back to the raw body.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		// Validation errors come back as a list of objects.
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			return strings.Join(msgs, "; ")
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(data))
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if perPage > 0 {
		q.Set("per_page", fmt.Sprint(perPage))
	}
	return q
}
