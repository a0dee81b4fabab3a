// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package provider

import (
	"sync"
	"time"
)

// TokenCache holds one access token and treats it as expired a safety margin
// before the provider's stated lifetime.
type TokenCache struct {
	margin time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenCache creates an empty cache. now may be nil for the wall clock.
func NewTokenCache(margin time.Duration, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{margin: margin, now: now}
}

// Get returns the cached token if it is still usable.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token the provider declared valid for lifetime.
func (c *TokenCache) Set(token string, lifetime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	usable := lifetime - c.margin
	if usable < 0 {
		usable = 0
	}
	c.token = token
	c.expiresAt = c.now().Add(usable)
}

// Invalidate forgets the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// ExpiresAt returns when the cached token stops being reused.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}
