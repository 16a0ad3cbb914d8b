// Package httpclient reaches the risk register, user directory and action
// tracker over HTTP/JSON.
//
// Timeouts, transport errors, 5xx/429 responses and undecodable bodies count
// as outages: they feed a circuit breaker and surface as
// sentinel.ErrUnavailable. While the breaker is open calls fail fast. A 404
// is an answer, not an outage, and surfaces as sentinel.ErrNotFound.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"riskaccept/pkg/platform/circuit"
	"riskaccept/pkg/platform/sentinel"
)

const maxResponseBytes = 1 << 20

// Observer receives lookup outcomes, for metrics.
type Observer interface {
	ObserveLookup(directory, result string)
	SetBreakerOpen(directory string, open bool)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(string, string) {}
func (nopObserver) SetBreakerOpen(string, bool) {}

// Client is the shared transport of the directory clients.
type Client struct {
	name     string
	baseURL  string
	http     *http.Client
	breaker  *circuit.Breaker
	logger   *slog.Logger
	observer Observer
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

func newClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 2 * time.Second},
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New(name)
	}
	return c
}

// outage records a failure against the breaker and wraps ErrUnavailable.
func (c *Client) outage(ctx context.Context, cause error) error {
	_, change := c.breaker.RecordFailure()
	if change.Opened {
		c.logger.WarnContext(ctx, "directory circuit opened",
			"directory", c.name,
			"error", cause,
		)
		c.observer.SetBreakerOpen(c.name, true)
	}
	c.observer.ObserveLookup(c.name, "unavailable")
	return fmt.Errorf("%s directory: %v: %w", c.name, cause, sentinel.ErrUnavailable)
}

func (c *Client) answered(ctx context.Context, result string) {
	_, change := c.breaker.RecordSuccess()
	if change.Closed {
		c.logger.InfoContext(ctx, "directory circuit closed",
			"directory", c.name,
		)
		c.observer.SetBreakerOpen(c.name, false)
	}
	c.observer.ObserveLookup(c.name, result)
}

// do sends a JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.Allow(time.Now()) {
		c.observer.ObserveLookup(c.name, "unavailable")
		return fmt.Errorf("%s directory: circuit open: %w", c.name, sentinel.ErrUnavailable)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.name, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.outage(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.answered(ctx, "not_found")
		return fmt.Errorf("%s %s: %w", c.name, path, sentinel.ErrNotFound)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return c.outage(ctx, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.answered(ctx, "error")
		return fmt.Errorf("%s %s: unexpected status %d", c.name, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
			return c.outage(ctx, fmt.Errorf("decode response: %w", err))
		}
	}
	c.answered(ctx, "ok")
	return nil
}
