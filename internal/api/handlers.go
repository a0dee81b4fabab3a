// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package api

import (
	"context"
	"time"

	"github.com/tomtom215/smsarchive/internal/models"
)

// Version is reported by the health endpoints. It is set at build time.
var Version = "dev"

// SyncService is the part of the sync manager the API drives.
type SyncService interface {
	SyncMessages(ctx context.Context, daysBack int) models.SyncResult
	LastResult() (*models.SyncResult, bool)
	GetMessages(ctx context.Context, f models.ConversationFilter) (*models.ConversationPage, error)
	GetConversation(ctx context.Context, phone string) (*models.Conversation, error)
	GetStats(ctx context.Context) (*models.MessageStats, error)
	DeleteOldMessages(ctx context.Context, daysToKeep int) (int, error)
}

// Pinger reports whether the conversation store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter exposes the provider circuit breaker state.
type CircuitReporter interface {
	BreakerState() string
}

// Handler serves the admin API.
type Handler struct {
	sync      SyncService
	db        Pinger
	provider  CircuitReporter
	startTime time.Time
}

// NewHandler creates a handler. provider may be nil.
func NewHandler(sync SyncService, db Pinger, provider CircuitReporter) *Handler {
	return &Handler{
		sync:      sync,
		db:        db,
		provider:  provider,
		startTime: time.Now(),
	}
}
