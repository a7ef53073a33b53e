// Package httpscorer calls a remote scoring service over HTTP.
package httpscorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/panelscore/internal/domain/scoring"
)

const (
	defaultTimeout = 3 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client posts profile triples to a scoring endpoint.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{url: url, timeout: defaultTimeout, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score implements scoring.Scorer. Every failure is reported as
// scoring.ErrScoreUnavailable.
func (c *Client) Score(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return scoring.Result{}, unavailable("encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return scoring.Result{}, unavailable("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return scoring.Result{}, unavailable("call scorer", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return scoring.Result{}, fmt.Errorf("%w: scorer returned %d", scoring.ErrScoreUnavailable, resp.StatusCode)
	}

	var res scoring.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&res); err != nil {
		return scoring.Result{}, unavailable("decode response", err)
	}
	if res.RelevancyScore == nil {
		return scoring.Result{}, fmt.Errorf("%w: response without relevancyScore", scoring.ErrScoreUnavailable)
	}
	return res, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", scoring.ErrScoreUnavailable, op, err)
}
