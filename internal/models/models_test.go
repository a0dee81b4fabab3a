// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, dir Direction, from, to string, offset time.Duration) Message {
	return Message{
		ID:           ProviderID(id),
		Direction:    dir,
		From:         Party{PhoneNumber: from},
		To:           []Party{{PhoneNumber: to}},
		Subject:      "msg " + id,
		CreationTime: base.Add(offset),
	}
}

func TestProviderID_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var payload struct {
		A ProviderID `json:"a"`
		B ProviderID `json:"b"`
		C ProviderID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 1234567890123, "b": "abc-9", "c": null}`), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.A != "1234567890123" {
		t.Errorf("numeric id = %q", payload.A)
	}
	if payload.B != "abc-9" {
		t.Errorf("string id = %q", payload.B)
	}
	if payload.C != "" {
		t.Errorf("null id = %q", payload.C)
	}

	var bad ProviderID
	if err := bad.UnmarshalJSON([]byte(`{}`)); err == nil {
		t.Error("expected error for object id")
	}
}

func TestCounterparty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		m    Message
		want string
	}{
		{"inbound uses sender", msg("1", DirectionInbound, "+1555A", "+1000", 0), "+1555A"},
		{"outbound uses first recipient", msg("2", DirectionOutbound, "+1000", "+1555B", 0), "+1555B"},
		{"outbound without recipients", Message{Direction: DirectionOutbound}, ""},
		{"unknown direction", Message{Direction: "Sideways", From: Party{PhoneNumber: "+1"}}, ""},
	}
	for _, tt := range tests {
		if got := tt.m.Counterparty(); got != tt.want {
			t.Errorf("%s: Counterparty() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDedupeByID_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	first := msg("7", DirectionInbound, "+1", "+2", 0)
	first.Subject = "first"
	second := first
	second.Subject = "second"
	third := first
	third.Subject = "third"

	out := DedupeByID([]Message{first, msg("8", DirectionInbound, "+1", "+2", time.Minute), second, third})
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Subject != "first" {
		t.Errorf("expected first occurrence to be kept, got %q", out[0].Subject)
	}
}

func TestGroupByCounterparty(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		msg("1", DirectionInbound, "+B", "+ME", 0),
		msg("2", DirectionOutbound, "+ME", "+A", time.Minute),
		msg("3", DirectionInbound, "+A", "+ME", 2*time.Minute),
		{ID: "4", Direction: DirectionOutbound},
	}

	groups, keys, orphans := GroupByCounterparty(msgs)
	if len(keys) != 2 || keys[0] != "+A" || keys[1] != "+B" {
		t.Fatalf("keys = %v, want [+A +B]", keys)
	}
	if len(groups["+A"]) != 2 || len(groups["+B"]) != 1 {
		t.Errorf("group sizes A=%d B=%d", len(groups["+A"]), len(groups["+B"]))
	}
	if len(orphans) != 1 || orphans[0].ID != "4" {
		t.Errorf("orphans = %v", orphans)
	}
}

func TestConversationMerge(t *testing.T) {
	t.Parallel()

	c := NewConversation("+A", "+ME", []Message{
		msg("2", DirectionInbound, "+A", "+ME", 2*time.Hour),
		msg("1", DirectionInbound, "+A", "+ME", time.Hour),
	}, base)

	if c.MessageCount != 2 || c.Messages[0].ID != "1" {
		t.Fatalf("new conversation not sorted: %+v", c.Messages)
	}

	later := base.Add(24 * time.Hour)
	added := c.Merge([]Message{
		msg("1", DirectionInbound, "+A", "+ME", time.Hour),
		msg("3", DirectionOutbound, "+ME", "+A", 30*time.Minute),
		msg("4", DirectionOutbound, "+ME", "+A", 3*time.Hour),
	}, later)

	if added != 2 {
		t.Errorf("Merge() added %d, want 2", added)
	}
	if c.MessageCount != 4 {
		t.Errorf("MessageCount = %d, want 4", c.MessageCount)
	}
	for i := 1; i < len(c.Messages); i++ {
		if c.Messages[i].CreationTime.Before(c.Messages[i-1].CreationTime) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
	if !c.FirstMessageTime.Equal(base.Add(30*time.Minute)) || !c.LastMessageTime.Equal(base.Add(3*time.Hour)) {
		t.Errorf("bounds = %v..%v", c.FirstMessageTime, c.LastMessageTime)
	}
	if !c.LastSyncedAt.Equal(later) {
		t.Errorf("LastSyncedAt = %v, want %v", c.LastSyncedAt, later)
	}

	if again := c.Merge([]Message{msg("4", DirectionOutbound, "+ME", "+A", 3*time.Hour)}, later.Add(time.Hour)); again != 0 {
		t.Errorf("re-merge added %d, want 0", again)
	}
	if !c.LastSyncedAt.Equal(later) {
		t.Error("no-op merge must not touch LastSyncedAt")
	}
}

func TestConversationTrimBefore(t *testing.T) {
	t.Parallel()

	c := NewConversation("+A", "+ME", []Message{
		msg("1", DirectionInbound, "+A", "+ME", 0),
		msg("2", DirectionInbound, "+A", "+ME", 48*time.Hour),
		msg("3", DirectionInbound, "+A", "+ME", 72*time.Hour),
	}, base)

	removed := c.TrimBefore(base.Add(24 * time.Hour))
	if removed != 1 {
		t.Fatalf("TrimBefore() removed %d, want 1", removed)
	}
	if c.MessageCount != 2 || !c.FirstMessageTime.Equal(base.Add(48*time.Hour)) {
		t.Errorf("derived fields not recomputed: count=%d first=%v", c.MessageCount, c.FirstMessageTime)
	}

	if removed := c.TrimBefore(base.Add(100 * time.Hour)); removed != 2 {
		t.Errorf("TrimBefore(all) removed %d, want 2", removed)
	}
	if c.MessageCount != 0 || !c.FirstMessageTime.IsZero() {
		t.Errorf("empty conversation should reset bounds, got count=%d first=%v", c.MessageCount, c.FirstMessageTime)
	}
}

func TestMessageStatsAdd(t *testing.T) {
	t.Parallel()

	c := NewConversation("+A", "+ME", []Message{
		msg("1", DirectionInbound, "+A", "+ME", 0),
		msg("2", DirectionOutbound, "+ME", "+A", time.Hour),
	}, base)
	c.Messages[1].Attachments = []Attachment{{ID: "9", URI: "https://x/9", ContentType: "image/png"}}

	var s MessageStats
	s.Add(c)

	if s.Conversations != 1 || s.TotalMessages != 2 || s.Inbound != 1 || s.Outbound != 1 || s.WithMedia != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.OldestMessage == nil || !s.OldestMessage.Equal(base) {
		t.Errorf("OldestMessage = %v", s.OldestMessage)
	}
	if s.NewestMessage == nil || !s.NewestMessage.Equal(base.Add(time.Hour)) {
		t.Errorf("NewestMessage = %v", s.NewestMessage)
	}
}
