// Package apiclient is the single path every remote call takes: per-attempt
// timeout, blind retry with capped exponential backoff, and JSON decoding.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response body is kept on StatusError.
const maxErrorBody = 2048

var ErrEmptyBaseURL = errors.New("apiclient: base url is empty")

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Endpoint, e.StatusCode)
}

// TokenSource supplies the bearer token for authenticated calls. An empty
// token sends the request without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the process-wide defaults.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Retries     uint
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// ConfigFrom reads the client defaults from the service configuration.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout(),
		Retries:     cfg.API.MaxRetries,
		BackoffBase: cfg.API.BackoffBase(),
		BackoffMax:  cfg.API.BackoffMax(),
	}
}

func (cfg Config) withDefaults() Config {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	return cfg
}

// Budget is the longest a call made with these defaults can run: every
// attempt hitting its timeout plus every backoff wait in between.
func (cfg Config) Budget() time.Duration {
	cfg = cfg.withDefaults()
	budget := time.Duration(cfg.Retries+1) * cfg.Timeout
	for i := uint(0); i < cfg.Retries; i++ {
		budget += Backoff(cfg.BackoffBase, cfg.BackoffMax, i)
	}
	return budget
}

// Client is safe for concurrent use. It holds no session state beyond its
// defaults and an optional token source.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenSource
	timer  retry.Timer
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Its own Timeout should be zero; the
// client arms a deadline per attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// New creates a client. Zero timeout and backoff values fall back to 30s, 1s and 10s.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	c := &Client{
		cfg:  cfg.withDefaults(),
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type requestConfig struct {
	timeout time.Duration
	retries uint
}

// RequestOption overrides a default for a single call.
type RequestOption func(*requestConfig)

func WithTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.timeout = d
		}
	}
}

// WithRetries sets the number of additional attempts after the first one.
func WithRetries(n uint) RequestOption {
	return func(rc *requestConfig) {
		rc.retries = n
	}
}

// Backoff is the wait before retry number attempt+1: min(base*2^attempt, max).
func Backoff(base, max time.Duration, attempt uint) time.Duration {
	if attempt >= 32 {
		return max
	}
	d := base << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}

func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out, opts...)
}

// Do sends method to endpoint, retrying every failed attempt until the retry
// budget is spent. The last attempt's error is returned. out may be nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	rc := requestConfig{
		timeout: c.cfg.Timeout,
		retries: c.cfg.Retries,
	}
	for _, opt := range opts {
		opt(&rc)
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body for %s: %w", endpoint, err)
		}
		payload = b
	}

	// attempt counts finished attempts; the delay after attempt i is Backoff(i).
	var attempt uint
	retryOpts := []retry.Option{
		retry.Attempts(rc.retries + 1),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return Backoff(c.cfg.BackoffBase, c.cfg.BackoffMax, attempt-1)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().
				Err(err).
				Str("method", method).
				Str("endpoint", endpoint).
				Uint("attempt", n+1).
				Msg("API request failed, retrying")
		}),
	}
	if c.timer != nil {
		retryOpts = append(retryOpts, retry.WithTimer(c.timer))
	}
	return retry.Do(
		func() error {
			err := c.attempt(ctx, method, endpoint, payload, "application/json", out, rc.timeout)
			attempt++
			return err
		},
		retryOpts...,
	)
}

// PostMultipart uploads a file with extra form fields in a single attempt.
func (c *Client) PostMultipart(ctx context.Context, endpoint string, fields map[string]string, fileField, filename string, file io.Reader, out any, opts ...RequestOption) error {
	rc := requestConfig{timeout: c.cfg.Timeout}
	for _, opt := range opts {
		opt(&rc)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return c.attempt(ctx, http.MethodPost, endpoint, buf.Bytes(), mw.FormDataContentType(), out, rc.timeout)
}

// attempt performs one request under its own deadline.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, contentType string, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, body)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("building request %s %s: %w", method, endpoint, err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("reading auth token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A success status ends the retry loop even when the body is unusable.
		return retry.Unrecoverable(fmt.Errorf("decoding %s %s response: %w", method, endpoint, err))
	}
	return nil
}
