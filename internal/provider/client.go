// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package provider is the HTTP client for the telephony provider's REST API.
//
// Features:
//   - JWT-bearer token exchange with an injectable TokenCache
//   - Fixed-window call budget shared by every request the client makes
//   - Per-call timeouts on every request
//   - Circuit breaker around the transport (sony/gobreaker)
//   - Paginated message-store listing with 429 back-off
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

const (
	tokenPath        = "/restapi/oauth/token"
	messageStorePath = "/restapi/v1.0/account/~/extension/~/message-store"

	maxJSONBodySize        = 16 << 20
	defaultMaxContentBytes = 25 << 20
)

// Client talks to the provider API. It is safe for concurrent use.
type Client struct {
	cfg     config.ProviderConfig
	baseURL string
	http    *http.Client

	tokens    *TokenCache
	refreshMu sync.Mutex
	budget    *CallBudget
	breaker   *gobreaker.CircuitBreaker[*response]

	maxContentBytes int64
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenCache injects the token cache, letting callers share or inspect it.
func WithTokenCache(tc *TokenCache) Option {
	return func(c *Client) { c.tokens = tc }
}

// WithCallBudget injects the call budget.
func WithCallBudget(b *CallBudget) Option {
	return func(c *Client) { c.budget = b }
}

// WithMaxContentBytes caps attachment downloads.
func WithMaxContentBytes(n int64) Option {
	return func(c *Client) { c.maxContentBytes = n }
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		cfg:             cfg,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            &http.Client{},
		maxContentBytes: defaultMaxContentBytes,
		now:             time.Now,
		sleep:           sleepCtx,
		breaker:         newProviderBreaker("provider-api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewTokenCache(cfg.TokenRefreshMargin, c.now)
	}
	if c.budget == nil {
		c.budget = NewCallBudget(cfg.CallsPerWindow, cfg.CallWindow)
	}
	return c
}

// response is a fully read provider response.
type response struct {
	Header http.Header
	Body   []byte
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

// do sends one request: it takes a slot from the call budget, applies the
// per-call timeout, runs through the circuit breaker and reads the whole body
// before the timeout is released. Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, endpoint string, build requestBuilder, maxBody int64) (*response, error) {
	if err := c.budget.Wait(ctx); err != nil {
		return nil, err
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	status := 0
	start := time.Now()
	resp, err := executeBreaker(c.breaker, func() (*response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
		}
		defer func() { _ = httpResp.Body.Close() }()
		status = httpResp.StatusCode

		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, &StatusError{
				Endpoint:   endpoint,
				StatusCode: httpResp.StatusCode,
				Body:       readBodyForError(httpResp.Body),
				RetryAfter: parseRetryAfter(httpResp.Header),
			}
		}

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
		}
		if int64(len(body)) > maxBody {
			return nil, fmt.Errorf("%s: %w (%d bytes)", endpoint, ErrBodyTooLarge, maxBody)
		}
		return &response{Header: httpResp.Header, Body: body}, nil
	})
	metrics.RecordProviderRequest(endpoint, status, time.Since(start))
	return resp, err
}

func (c *Client) bearerGet(uri, token, accept string) requestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return req, nil
	}
}

// BreakerState returns the circuit breaker state name (closed, half-open, open).
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.State())
}
