// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionLifetime bounds self-signed assertions.
const assertionLifetime = 5 * time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// AccessToken returns a bearer token, exchanging the JWT assertion for a new
// one when the cache is empty or expired. Exchanges are serialized so
// concurrent callers share one refresh. There is no retry here; a failed
// exchange is returned to the caller with the provider's response body.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(); ok {
		return tok, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if tok, ok := c.tokens.Get(); ok {
		return tok, nil
	}

	assertion, err := c.assertion()
	if err != nil {
		metrics.ProviderTokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to build JWT assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	resp, err := c.do(ctx, "token", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, maxJSONBodySize)
	if err != nil {
		metrics.ProviderTokenRefreshes.WithLabelValues("error").Inc()
		var se *StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("token exchange failed with status %d: %s", se.StatusCode, se.Body)
		}
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		metrics.ProviderTokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		metrics.ProviderTokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("token response did not include an access token")
	}

	c.tokens.Set(tr.AccessToken, time.Duration(tr.ExpiresIn)*time.Second)
	metrics.ProviderTokenRefreshes.WithLabelValues("success").Inc()
	logging.Ctx(ctx).Debug().
		Str("token", logging.RedactToken(tr.AccessToken)).
		Int64("expires_in", tr.ExpiresIn).
		Time("reuse_until", c.tokens.ExpiresAt()).
		Msg("Obtained provider access token")

	return tr.AccessToken, nil
}

// assertion returns the pre-issued JWT credential, or signs a short-lived
// HS256 assertion for the configured subject.
func (c *Client) assertion() (string, error) {
	if c.cfg.JWTAssertion != "" {
		return c.cfg.JWTAssertion, nil
	}
	if c.cfg.SigningKey == "" {
		return "", fmt.Errorf("no JWT credential or signing key configured")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.cfg.ClientID,
		Subject:   c.cfg.Subject,
		Audience:  jwt.ClaimStrings{c.baseURL + tokenPath},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.SigningKey))
}
