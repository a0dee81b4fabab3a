// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package models

import "time"

// Conversation is every message exchanged with one counterparty phone number.
//
// Messages are kept in ascending CreationTime order with unique ids;
// MessageCount, FirstMessageTime and LastMessageTime always describe Messages.
type Conversation struct {
	PhoneNumber      string    `json:"phoneNumber" bson:"phoneNumber"`
	MyPhoneNumber    string    `json:"myPhoneNumber" bson:"myPhoneNumber"`
	Messages         []Message `json:"messages" bson:"messages"`
	MessageCount     int       `json:"messageCount" bson:"messageCount"`
	FirstMessageTime time.Time `json:"firstMessageTime" bson:"firstMessageTime"`
	LastMessageTime  time.Time `json:"lastMessageTime" bson:"lastMessageTime"`
	LastSyncedAt     time.Time `json:"lastSyncedAt" bson:"lastSyncedAt"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

// NewConversation builds a conversation document from a batch of messages.
func NewConversation(phone, myPhone string, msgs []Message, now time.Time) *Conversation {
	c := &Conversation{
		PhoneNumber:   phone,
		MyPhoneNumber: myPhone,
		Messages:      DedupeByID(msgs),
		LastSyncedAt:  now,
		CreatedAt:     now,
	}
	SortByCreationTime(c.Messages)
	c.Recompute()
	return c
}

// MessageIDs returns the set of ids already stored in the conversation.
func (c *Conversation) MessageIDs() map[ProviderID]struct{} {
	ids := make(map[ProviderID]struct{}, len(c.Messages))
	for i := range c.Messages {
		ids[c.Messages[i].ID] = struct{}{}
	}
	return ids
}

// Recompute refreshes MessageCount and the time bounds from Messages.
// Messages must already be sorted.
func (c *Conversation) Recompute() {
	c.MessageCount = len(c.Messages)
	if c.MessageCount == 0 {
		c.FirstMessageTime = time.Time{}
		c.LastMessageTime = time.Time{}
		return
	}
	c.FirstMessageTime = c.Messages[0].CreationTime
	c.LastMessageTime = c.Messages[c.MessageCount-1].CreationTime
}

// Merge appends the messages that are not yet present, re-sorts, and
// recomputes the derived fields. It returns how many messages were added.
func (c *Conversation) Merge(incoming []Message, now time.Time) int {
	fresh := FilterNew(c.MessageIDs(), DedupeByID(incoming))
	if len(fresh) == 0 {
		return 0
	}
	c.Messages = append(c.Messages, fresh...)
	SortByCreationTime(c.Messages)
	c.Recompute()
	c.LastSyncedAt = now
	return len(fresh)
}

// TrimBefore removes messages created before cutoff and returns how many were
// removed. Derived fields are recomputed when anything changed.
func (c *Conversation) TrimBefore(cutoff time.Time) int {
	kept := c.Messages[:0]
	for i := range c.Messages {
		if !c.Messages[i].CreationTime.Before(cutoff) {
			kept = append(kept, c.Messages[i])
		}
	}
	removed := len(c.Messages) - len(kept)
	c.Messages = kept
	if removed > 0 {
		c.Recompute()
	}
	return removed
}

// MergeResult reports what a merge did to one conversation.
type MergeResult struct {
	Created bool `json:"created"`
	Added   int  `json:"added"`
	Skipped int  `json:"skipped"`
}

// Changed reports whether the conversation was created or gained messages.
func (r MergeResult) Changed() bool {
	return r.Created || r.Added > 0
}
