// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package services

import (
	"context"

	"github.com/tomtom215/smsarchive/internal/logging"
)

// Shutdowner is a component that runs on its own goroutines once created
// and only needs to be stopped.
type Shutdowner interface {
	Shutdown()
}

// EmbeddedNATSService ties the lifetime of the in-process NATS server to the
// supervisor tree.
type EmbeddedNATSService struct {
	server Shutdowner
}

// NewEmbeddedNATSService wraps an already started server.
func NewEmbeddedNATSService(server Shutdowner) *EmbeddedNATSService {
	return &EmbeddedNATSService{server: server}
}

// Serve blocks until ctx is done and then shuts the server down.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.server.Shutdown()
	logging.Info().Msg("Embedded NATS server stopped")
	return ctx.Err()
}

func (s *EmbeddedNATSService) String() string {
	return "embedded-nats"
}

// Clearer is a request queue that can drop its pending work.
type Clearer interface {
	Clear() int
}

// QueueDrainService clears the attachment request queue on shutdown so that
// callers blocked on queued downloads return instead of waiting for their turn.
type QueueDrainService struct {
	queue Clearer
	name  string
}

// NewQueueDrainService wraps queue.
func NewQueueDrainService(name string, queue Clearer) *QueueDrainService {
	return &QueueDrainService{queue: queue, name: name}
}

// Serve blocks until ctx is done, then clears the queue.
func (s *QueueDrainService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if n := s.queue.Clear(); n > 0 {
		logging.Warn().Str("queue", s.name).Int("dropped", n).Msg("Dropped queued requests on shutdown")
	}
	return ctx.Err()
}

func (s *QueueDrainService) String() string {
	return s.name + "-drain"
}
