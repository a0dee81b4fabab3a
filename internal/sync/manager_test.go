// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/smsarchive/internal/models"
)

func TestNewManager(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if h.manager.running {
		t.Error("manager should not be running initially")
	}
	if h.manager.stopChan == nil {
		t.Error("stop channel not initialized")
	}

	m := NewManager(Dependencies{State: h.state}, newTestConfig())
	if m.events == nil {
		t.Error("nil publisher should default to a no-op")
	}
}

func TestManager_GetMessages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sampleListing())
	h.manager.SyncMessages(context.Background(), 7)

	page, err := h.manager.GetMessages(context.Background(), models.ConversationFilter{Phone: "555"})
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	checkIntEqual(t, "page defaulted", h.store.lastFilter.Page, 1)
	checkIntEqual(t, "conversations", len(page.Conversations), 2)

	stats, err := h.manager.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	checkIntEqual(t, "total messages", stats.TotalMessages, 7)
	checkIntEqual(t, "with attachments", stats.WithMedia, 1)
}

func TestManager_GetConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sampleListing())
	h.manager.SyncMessages(context.Background(), 7)

	conv, err := h.manager.GetConversation(context.Background(), phoneA)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	checkIntEqual(t, "messages", len(conv.Messages), 4)
	if conv.MyPhoneNumber != myPhone {
		t.Errorf("myPhoneNumber = %q", conv.MyPhoneNumber)
	}

	for _, phone := range []string{"+15550003333", ""} {
		if _, err := h.manager.GetConversation(context.Background(), phone); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("GetConversation(%q) error = %v, want ErrConversationNotFound", phone, err)
		}
	}
}

func TestManager_DeleteOldMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		daysToKeep int
		wantErr    bool
	}{
		{"zero days", 0, true},
		{"negative", -3, true},
		{"one day", 1, false},
		{"a month", 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			_, err := h.manager.DeleteOldMessages(context.Background(), tt.daysToKeep)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !h.store.deleteCutoff.IsZero() {
					t.Error("store must not be touched on invalid input")
				}
				return
			}
			want := baseTime.AddDate(0, 0, -tt.daysToKeep)
			if !h.store.deleteCutoff.Equal(want) {
				t.Errorf("cutoff = %v, want %v", h.store.deleteCutoff, want)
			}
		})
	}
}

func TestManager_DeleteOldMessagesRemovesEmptyConversations(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []models.Message{
		inbound("6001", phoneA, -3*24*60),
		inbound("6002", phoneA, -1*24*60),
		inbound("6003", phoneB, -5*24*60),
	})
	h.manager.SyncMessages(context.Background(), 7)

	removed, err := h.manager.DeleteOldMessages(context.Background(), 2)
	if err != nil {
		t.Fatalf("DeleteOldMessages: %v", err)
	}
	checkIntEqual(t, "removed", removed, 2)
	if h.store.conversation(phoneB) != nil {
		t.Error("emptied conversation should be deleted")
	}
	checkIntEqual(t, "A remaining", h.store.conversation(phoneA).MessageCount, 1)
}

func TestManager_StartStop(t *testing.T) {
	// NOT parallel - goroutine lifecycle with timing

	h := newHarness(t, sampleListing())
	h.manager.cfg.Sync.Enabled = true
	h.manager.cfg.Sync.RunOnStartup = true

	completed := make(chan models.SyncResult, 1)
	h.manager.SetOnSyncCompleted(func(res models.SyncResult) {
		select {
		case completed <- res:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.manager.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	select {
	case res := <-completed:
		if !res.Success {
			t.Errorf("startup sync failed: %s", res.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("startup sync did not run")
	}

	if err := h.manager.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.manager.Stop(); err == nil {
		t.Error("second Stop should fail")
	}
}

func TestManager_StartDisabledRunsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sampleListing())
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.manager.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	checkIntEqual(t, "fetch calls", h.source.fetchCalls, 0)
}
