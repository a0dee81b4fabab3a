// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/smsarchive/internal/validation"
)

// Validate checks struct-tag rules first, then rules that span several fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateProviderCredentials(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateProviderCredentials() error {
	if c.Provider.JWTAssertion == "" && c.Provider.SigningKey == "" {
		return fmt.Errorf("PROVIDER_JWT or PROVIDER_SIGNING_KEY is required")
	}
	if c.Provider.JWTAssertion == "" && c.Provider.Subject == "" {
		return fmt.Errorf("PROVIDER_SUBJECT is required when signing assertions with PROVIDER_SIGNING_KEY")
	}
	if c.Provider.TokenRefreshMargin < 0 {
		return fmt.Errorf("PROVIDER_TOKEN_REFRESH_MARGIN must not be negative")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Enabled && c.Sync.Interval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m when scheduled sync is enabled (got %s)", c.Sync.Interval)
	}
	if c.Sync.RetentionDays > 0 && c.Sync.RetentionDays < c.Sync.DaysBack {
		return fmt.Errorf("SYNC_RETENTION_DAYS (%d) must not be shorter than SYNC_DAYS_BACK (%d), every sync would re-import trimmed messages",
			c.Sync.RetentionDays, c.Sync.DaysBack)
	}
	if c.State.LockTTL < c.Sync.Timeout {
		return fmt.Errorf("STATE_LOCK_TTL (%s) must be at least SYNC_TIMEOUT (%s)", c.State.LockTTL, c.Sync.Timeout)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.EmbeddedPort < -1 || c.NATS.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be -1 (random) or a valid port (got %d)", c.NATS.EmbeddedPort)
		}
	} else if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("NATS_SUBJECT_PREFIX must not be empty")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQS must not be negative")
	}
	if c.Security.RateLimitReqs > 0 && c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when RATE_LIMIT_REQS is set")
	}
	return nil
}

// Address returns the listen address for the admin HTTP API.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
