// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package events publishes sync notifications to NATS so other services can
// react to new messages without polling the conversation store.
//
// Subjects (prefix from nats.subject_prefix, default "smsarchive"):
//
//	{prefix}.sync.completed          one per sync run, successful or not
//	{prefix}.conversation.updated    one per conversation that gained messages
//
// Publishing is best effort: a failure is logged and counted, never returned
// to the sync run.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/smsarchive/internal/models"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectSyncCompleted       = "sync.completed"
	SubjectConversationUpdated = "conversation.updated"
)

// SyncCompleted is published at the end of every sync run.
type SyncCompleted struct {
	EventID    string            `json:"eventId"`
	OccurredAt time.Time         `json:"occurredAt"`
	Result     models.SyncResult `json:"result"`
}

// ConversationUpdated is published when a sync run created a conversation
// or added messages to one.
type ConversationUpdated struct {
	EventID       string    `json:"eventId"`
	OccurredAt    time.Time `json:"occurredAt"`
	PhoneNumber   string    `json:"phoneNumber"`
	Created       bool      `json:"created"`
	MessagesAdded int       `json:"messagesAdded"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewSyncCompleted wraps a sync result in an event envelope.
func NewSyncCompleted(res *models.SyncResult) *SyncCompleted {
	return &SyncCompleted{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Result:     *res,
	}
}

// NewConversationUpdated builds the event for one merged conversation.
func NewConversationUpdated(phone string, res models.MergeResult, correlationID string) *ConversationUpdated {
	return &ConversationUpdated{
		EventID:       uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		PhoneNumber:   phone,
		Created:       res.Created,
		MessagesAdded: res.Added,
		CorrelationID: correlationID,
	}
}

// Publisher delivers sync events.
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, ev *SyncCompleted) error
	PublishConversationUpdated(ctx context.Context, ev *ConversationUpdated) error
	Close() error
}

// NoopPublisher discards every event. It is used when NATS is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishSyncCompleted(context.Context, *SyncCompleted) error { return nil }

func (NoopPublisher) PublishConversationUpdated(context.Context, *ConversationUpdated) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
