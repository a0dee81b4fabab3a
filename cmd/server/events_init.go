// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package main

import (
	"fmt"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/events"
	"github.com/tomtom215/smsarchive/internal/logging"
)

// initEvents picks the event publisher. The embedded server, when started,
// is returned so the supervisor can own its shutdown.
func initEvents(cfg config.NATSConfig) (*events.EmbeddedServer, events.Publisher, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Event publishing disabled (NATS_ENABLED=false)")
		return nil, events.NoopPublisher{}, nil
	}

	url := cfg.URL
	var embedded *events.EmbeddedServer
	if cfg.EmbeddedServer {
		srv, err := events.NewEmbeddedServer("127.0.0.1", cfg.EmbeddedPort)
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Int("port", srv.Port()).Msg("Embedded NATS server started")
	}

	pub, err := events.NewNATSPublisher(url, cfg.SubjectPrefix)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, nil, fmt.Errorf("connect event publisher: %w", err)
	}
	logging.Info().Str("url", url).Str("prefix", cfg.SubjectPrefix).Msg("Publishing sync events to NATS")
	return embedded, pub, nil
}
