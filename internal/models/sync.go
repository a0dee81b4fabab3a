// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package models

import "time"

// SyncResult summarizes one sync run. A run never returns an error to its
// caller; failures are reported through Success and Error.
type SyncResult struct {
	Success               bool   `json:"success"`
	Synced                int    `json:"synced"`
	Skipped               int    `json:"skipped"`
	ConversationsUpdated  int    `json:"conversationsUpdated"`
	AttachmentsDownloaded int    `json:"attachmentsDownloaded"`
	Error                 string `json:"error,omitempty"`

	AttachmentsFailed int `json:"attachmentsFailed"`
	Fetched           int `json:"fetched"`
	Duplicates        int `json:"duplicates"`

	// Partial is set when the message listing stopped before the last page.
	// The messages that were fetched are still synced.
	Partial bool   `json:"partial,omitempty"`
	Warning string `json:"warning,omitempty"`

	DaysBack      int       `json:"daysBack"`
	StartedAt     time.Time `json:"startedAt"`
	DurationMS    int64     `json:"durationMs"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// ConversationFilter selects conversations for listing.
type ConversationFilter struct {
	// Phone matches any conversation whose number contains this substring.
	Phone string `validate:"omitempty,max=32"`
	// Search is a full-text query over message subjects.
	Search    string `validate:"omitempty,max=200"`
	StartDate *time.Time
	EndDate   *time.Time
	// Page is 1-based.
	Page int `validate:"min=1"`
	// Limit of 0 returns every matching conversation unpaginated.
	Limit int `validate:"min=0,max=500"`
}

// ConversationPage is one page of conversations.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	TotalPages    int            `json:"totalPages"`
}

// MessageStats aggregates the whole archive.
type MessageStats struct {
	Conversations int        `json:"conversations"`
	TotalMessages int        `json:"totalMessages"`
	Inbound       int        `json:"inbound"`
	Outbound      int        `json:"outbound"`
	WithMedia     int        `json:"withAttachments"`
	OldestMessage *time.Time `json:"oldestMessage,omitempty"`
	NewestMessage *time.Time `json:"newestMessage,omitempty"`
}

// Add folds one conversation into the stats.
func (s *MessageStats) Add(c *Conversation) {
	s.Conversations++
	for i := range c.Messages {
		m := &c.Messages[i]
		s.TotalMessages++
		switch m.Direction {
		case DirectionInbound:
			s.Inbound++
		case DirectionOutbound:
			s.Outbound++
		}
		if len(m.Attachments) > 0 {
			s.WithMedia++
		}
		if m.CreationTime.IsZero() {
			continue
		}
		if s.OldestMessage == nil || m.CreationTime.Before(*s.OldestMessage) {
			t := m.CreationTime
			s.OldestMessage = &t
		}
		if s.NewestMessage == nil || m.CreationTime.After(*s.NewestMessage) {
			t := m.CreationTime
			s.NewestMessage = &t
		}
	}
}
