// Package api is a client for the taostats REST API.
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
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://api.taostats.io"
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	userAgent         = "taostats-go/1.0"
	statusPath        = "/api/status/v1"
)

// ErrAPIKeyRequired is returned before any request is sent without a key.
var ErrAPIKeyRequired = errors.New("an API key is required for taostats API calls; chain operations only need an rpc url")

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("taostats api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("taostats api: status %d", e.StatusCode)
}

// Params are query parameters. Keys are sent in sorted order.
type Params map[string]string

func (p Params) encode() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		if p[k] == "" {
			continue
		}
		values.Set(k, p[k])
	}
	return values.Encode()
}

// Client sends authenticated requests with retries on 5xx and transport errors.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithRetryDelay sets the first backoff delay; each retry doubles it.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get requests path and decodes the JSON response into out, when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, params Params, out any) error {
	target := path
	if q := params.encode(); q != "" {
		target += "?" + q
	}
	return c.do(ctx, http.MethodGet, target, nil, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

// Health reports the API status. It is the only call that works without a key.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Get(ctx, statusPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte, out any) error {
	if c.apiKey == "" && !strings.HasPrefix(target, statusPath) {
		return ErrAPIKeyRequired
	}

	var body []byte
	err := withRetry(ctx, c.retries, c.retryDelay, func(ctx context.Context) error {
		var err error
		body, err = c.once(ctx, method, target, payload)
		if err != nil {
			c.logger.Debug("api request failed", zap.String("method", method), zap.String("path", target), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", target, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, reader)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := &Error{StatusCode: resp.StatusCode, Body: body, Message: errorMessage(body)}
	if resp.StatusCode >= 500 {
		return nil, apiErr
	}
	return nil, permanent(apiErr)
}

// errorMessage pulls "message" or "error" out of a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
