// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/smsarchive/config.yaml",
	"/etc/smsarchive/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:             "https://platform.ringcentral.com",
			RequestTimeout:      30 * time.Second,
			CallsPerWindow:      50,
			CallWindow:          60 * time.Second,
			TokenRefreshMargin:  5 * time.Minute,
			PageSize:            100,
			PageDelay:           500 * time.Millisecond,
			RateLimitWait:       60 * time.Second,
			MaxRateLimitRetries: 10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1,
			MinDelay:          1 * time.Second,
		},
		Attachments: AttachmentsConfig{
			Folder:       "sms-uploads",
			BatchSize:    3,
			BatchPause:   2 * time.Second,
			MaxAttempts:  5,
			BaseDelay:    1 * time.Second,
			MaxJitter:    1 * time.Second,
			MaxSizeBytes: 25 << 20,
		},
		Blob: BlobConfig{
			Container: "sms-attachments",
			Timeout:   60 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "smsarchive",
			Collection: "sms_conversations",
			Timeout:    10 * time.Second,
		},
		Sync: SyncConfig{
			DaysBack:      30,
			Enabled:       true,
			Interval:      1 * time.Hour,
			RunOnStartup:  false,
			RetentionDays: 0,
			Timeout:       2 * time.Hour,
		},
		State: StateConfig{
			Path:    "/data/smsarchive/state",
			LockTTL: 3 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedPort:   4222,
			SubjectPrefix:  "smsarchive",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config File: optional YAML config file
//  3. Environment Variables: override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot pollute config.
var envMappings = map[string]string{
	"provider_base_url":               "provider.base_url",
	"provider_client_id":              "provider.client_id",
	"provider_client_secret":          "provider.client_secret",
	"provider_jwt":                    "provider.jwt_assertion",
	"provider_jwt_assertion":          "provider.jwt_assertion",
	"provider_signing_key":            "provider.signing_key",
	"provider_subject":                "provider.subject",
	"provider_request_timeout":        "provider.request_timeout",
	"provider_calls_per_window":       "provider.calls_per_window",
	"provider_call_window":            "provider.call_window",
	"provider_token_refresh_margin":   "provider.token_refresh_margin",
	"provider_page_size":              "provider.page_size",
	"provider_page_delay":             "provider.page_delay",
	"provider_rate_limit_wait":        "provider.rate_limit_wait",
	"provider_max_rate_limit_retries": "provider.max_rate_limit_retries",

	"rate_limit_rps":       "rate_limit.requests_per_second",
	"rate_limit_min_delay": "rate_limit.min_delay",

	"attachments_folder":       "attachments.folder",
	"attachments_batch_size":   "attachments.batch_size",
	"attachments_batch_pause":  "attachments.batch_pause",
	"attachments_max_attempts": "attachments.max_attempts",
	"attachments_base_delay":   "attachments.base_delay",
	"attachments_max_jitter":   "attachments.max_jitter",
	"attachments_max_size":     "attachments.max_size_bytes",

	"blob_connection_string":          "blob.connection_string",
	"azure_storage_connection_string": "blob.connection_string",
	"blob_container":                  "blob.container",
	"blob_timeout":                    "blob.timeout",

	"mongo_uri":        "mongo.uri",
	"mongodb_uri":      "mongo.uri",
	"mongo_database":   "mongo.database",
	"mongo_collection": "mongo.collection",
	"mongo_timeout":    "mongo.timeout",

	"my_phone_number":     "sync.my_phone_number",
	"sync_days_back":      "sync.days_back",
	"sync_enabled":        "sync.enabled",
	"sync_interval":       "sync.interval",
	"sync_run_on_startup": "sync.run_on_startup",
	"sync_retention_days": "sync.retention_days",
	"sync_timeout":        "sync.timeout",

	"state_path":     "state.path",
	"state_lock_ttl": "state.lock_ttl",

	"nats_enabled":         "nats.enabled",
	"nats_url":             "nats.url",
	"nats_embedded_server": "nats.embedded_server",
	"nats_embedded_port":   "nats.embedded_port",
	"nats_subject_prefix":  "nats.subject_prefix",

	"http_enabled": "server.enabled",
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	"rate_limit_reqs":   "security.rate_limit_reqs",
	"rate_limit_window": "security.rate_limit_window",
	"cors_origins":      "security.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
//	PROVIDER_CLIENT_ID -> provider.client_id
//	SYNC_DAYS_BACK     -> sync.days_back
//	MONGODB_URI        -> mongo.uri
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
