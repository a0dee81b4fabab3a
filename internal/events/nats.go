// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

// NATSPublisher publishes events as JSON messages on core NATS subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url. Connection attempts are retried in the
// background, so a NATS outage at startup does not stop the service.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("smsarchive"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrlRedacted()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, prefix: trimPrefix(prefix)}, nil
}

func trimPrefix(prefix string) string {
	return strings.TrimSuffix(strings.TrimSpace(prefix), ".")
}

// Subject returns the full subject for suffix.
func (p *NATSPublisher) Subject(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

// PublishSyncCompleted publishes the end-of-run event.
func (p *NATSPublisher) PublishSyncCompleted(ctx context.Context, ev *SyncCompleted) error {
	return p.publish(ctx, p.Subject(SubjectSyncCompleted), ev.EventID, ev)
}

// PublishConversationUpdated publishes a per-conversation change event.
func (p *NATSPublisher) PublishConversationUpdated(ctx context.Context, ev *ConversationUpdated) error {
	return p.publish(ctx, p.Subject(SubjectConversationUpdated), ev.EventID, ev)
}

func (p *NATSPublisher) publish(ctx context.Context, subject, eventID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordEventPublish(subject, err)
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, eventID)
	msg.Header.Set("Content-Type", "application/json")
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Header.Set("X-Correlation-ID", id)
	}

	err = p.nc.PublishMsg(msg)
	metrics.RecordEventPublish(subject, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed every published message.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
