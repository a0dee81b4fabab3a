// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package config loads SMS Archive configuration from defaults, an optional
// YAML file and environment variables (in that order of precedence, lowest first).
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Provider    ProviderConfig    `koanf:"provider"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Attachments AttachmentsConfig `koanf:"attachments"`
	Blob        BlobConfig        `koanf:"blob"`
	Mongo       MongoConfig       `koanf:"mongo"`
	Sync        SyncConfig        `koanf:"sync"`
	State       StateConfig       `koanf:"state"`
	NATS        NATSConfig        `koanf:"nats"`
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ProviderConfig holds telephony provider API settings.
type ProviderConfig struct {
	BaseURL      string `koanf:"base_url" validate:"required,url"`
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`

	// JWTAssertion is a pre-issued JWT credential exchanged for an access token.
	// When empty, an assertion is signed with SigningKey.
	JWTAssertion string `koanf:"jwt_assertion"`
	SigningKey   string `koanf:"signing_key"`
	Subject      string `koanf:"subject"`

	RequestTimeout      time.Duration `koanf:"request_timeout" validate:"min=1s"`
	CallsPerWindow      int           `koanf:"calls_per_window" validate:"min=1"`
	CallWindow          time.Duration `koanf:"call_window" validate:"min=1s"`
	TokenRefreshMargin  time.Duration `koanf:"token_refresh_margin"`
	PageSize            int           `koanf:"page_size" validate:"min=1,max=1000"`
	PageDelay           time.Duration `koanf:"page_delay"`
	RateLimitWait       time.Duration `koanf:"rate_limit_wait"`
	MaxRateLimitRetries int           `koanf:"max_rate_limit_retries" validate:"min=1"`
}

// RateLimitConfig configures the shared FIFO limiter that paces attachment
// traffic to the provider.
type RateLimitConfig struct {
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	MinDelay          time.Duration `koanf:"min_delay"`
}

// AttachmentsConfig holds attachment download/upload settings.
type AttachmentsConfig struct {
	Folder       string        `koanf:"folder" validate:"required"`
	BatchSize    int           `koanf:"batch_size" validate:"min=1"`
	BatchPause   time.Duration `koanf:"batch_pause"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1"`
	BaseDelay    time.Duration `koanf:"base_delay"`
	MaxJitter    time.Duration `koanf:"max_jitter"`
	MaxSizeBytes int64         `koanf:"max_size_bytes" validate:"min=1"`
}

// BlobConfig holds Azure Blob Storage settings.
type BlobConfig struct {
	ConnectionString string        `koanf:"connection_string" validate:"required"`
	Container        string        `koanf:"container" validate:"required"`
	Timeout          time.Duration `koanf:"timeout" validate:"min=1s"`
}

// MongoConfig holds conversation store settings.
type MongoConfig struct {
	URI        string        `koanf:"uri" validate:"required"`
	Database   string        `koanf:"database" validate:"required"`
	Collection string        `koanf:"collection" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" validate:"min=1s"`
}

// SyncConfig holds sync scheduling settings.
type SyncConfig struct {
	// MyPhoneNumber is the account's own number, stored on every conversation.
	MyPhoneNumber string        `koanf:"my_phone_number" validate:"required,phone"`
	DaysBack      int           `koanf:"days_back" validate:"min=1"`
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval"`
	RunOnStartup  bool          `koanf:"run_on_startup"`
	RetentionDays int           `koanf:"retention_days" validate:"gte=0"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=1m"`
}

// StateConfig holds the local sync state store settings.
type StateConfig struct {
	Path    string        `koanf:"path"`
	LockTTL time.Duration `koanf:"lock_ttl" validate:"min=1m"`
}

// NATSConfig holds event publishing settings.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// EmbeddedServer starts an in-process NATS server and publishes to it
	// instead of URL.
	EmbeddedServer bool   `koanf:"embedded_server"`
	EmbeddedPort   int    `koanf:"embedded_port"`
	SubjectPrefix  string `koanf:"subject_prefix"`
}

// ServerConfig holds admin HTTP API settings.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds HTTP API protection settings.
type SecurityConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
