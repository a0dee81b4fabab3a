// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

//go:build integration

package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/smsarchive/internal/attachments"
	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/database"
	"github.com/tomtom215/smsarchive/internal/models"
	"github.com/tomtom215/smsarchive/internal/provider"
	"github.com/tomtom215/smsarchive/internal/ratelimit"
	"github.com/tomtom215/smsarchive/internal/state"
	"github.com/tomtom215/smsarchive/internal/testinfra"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

// TestSync_FullStack runs the pipeline against a mock provider, Azurite and
// MongoDB with the production provider client, attachment store and state store.
func TestSync_FullStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mongo, err := testinfra.NewMongoContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start MongoDB: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, context.Background(), mongo.Container) })

	azurite, err := testinfra.NewAzuriteContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start Azurite: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, context.Background(), azurite.Container) })

	mp := testinfra.NewMockProvider(t)
	recent := time.Now().UTC().Add(-2 * time.Hour)
	contentURI := mp.AddContent("900", pngBytes)
	for i, rec := range []struct {
		id, dir, from, to string
		withMedia         bool
	}{
		{"1001", "Inbound", phoneA, myPhone, false},
		{"1002", "Outbound", myPhone, phoneA, false},
		{"1003", "Inbound", phoneB, myPhone, true},
		{"1001", "Inbound", phoneA, myPhone, false},
	} {
		record := map[string]any{
			"id":           rec.id,
			"direction":    rec.dir,
			"from":         map[string]string{"phoneNumber": rec.from},
			"to":           []map[string]string{{"phoneNumber": rec.to}},
			"subject":      "hello " + rec.id,
			"creationTime": recent.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
		if rec.withMedia {
			record["attachments"] = []map[string]string{{"id": "900", "uri": contentURI, "contentType": "image/png"}}
		}
		mp.AddMessage(record)
	}

	cfg := newTestConfig()
	cfg.Provider = config.ProviderConfig{
		BaseURL:             mp.URL(),
		ClientID:            "client",
		ClientSecret:        "secret",
		JWTAssertion:        "test-assertion",
		RequestTimeout:      10 * time.Second,
		CallsPerWindow:      50,
		CallWindow:          time.Minute,
		TokenRefreshMargin:  5 * time.Minute,
		PageSize:            2,
		RateLimitWait:       10 * time.Millisecond,
		MaxRateLimitRetries: 2,
	}
	cfg.Attachments = config.AttachmentsConfig{
		Folder:       "sms-uploads",
		BatchSize:    3,
		MaxAttempts:  2,
		BaseDelay:    10 * time.Millisecond,
		MaxSizeBytes: 1 << 20,
	}

	store, err := database.Connect(ctx, config.MongoConfig{
		URI:        mongo.URI,
		Database:   "smsarchive_it",
		Collection: "sms_conversations",
		Timeout:    10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	backend, err := attachments.NewAzureBackend(config.BlobConfig{
		ConnectionString: azurite.ConnectionString,
		Container:        "sms-attachments",
		Timeout:          30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewAzureBackend() error = %v", err)
	}

	client := provider.NewClient(cfg.Provider, provider.WithMaxContentBytes(cfg.Attachments.MaxSizeBytes))
	queue := ratelimit.New("it-attachments", 20, 0)
	blobStore := attachments.NewStore(backend, client, queue, cfg.Attachments)
	if err := blobStore.Init(ctx); err != nil {
		t.Fatalf("attachment store Init() error = %v", err)
	}

	st, err := state.OpenInMemory()
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	manager := NewManager(Dependencies{
		Store:       store,
		Source:      client,
		Attachments: blobStore,
		State:       st,
	}, cfg)

	res := manager.SyncMessages(ctx, 1)
	if !res.Success {
		t.Fatalf("sync failed: %+v", res)
	}
	checkIntEqual(t, "fetched", res.Fetched, 4)
	checkIntEqual(t, "duplicates", res.Duplicates, 1)
	checkIntEqual(t, "synced", res.Synced, 3)
	checkIntEqual(t, "conversations updated", res.ConversationsUpdated, 2)
	checkIntEqual(t, "attachments downloaded", res.AttachmentsDownloaded, 1)

	conv, err := manager.GetConversation(ctx, phoneB)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	blobURL := conv.Messages[0].Attachments[0].AzureURL
	if !strings.Contains(blobURL, "/sms-attachments/sms-uploads/") {
		t.Errorf("attachment URL = %q, want a blob under sms-uploads/", blobURL)
	}
	if !blobStore.Exists(ctx, blobURL) {
		t.Errorf("uploaded blob %q does not exist", blobURL)
	}

	second := manager.SyncMessages(ctx, 1)
	if !second.Success {
		t.Fatalf("second sync failed: %+v", second)
	}
	checkIntEqual(t, "second run synced", second.Synced, 0)
	checkIntEqual(t, "second run skipped", second.Skipped, 3)
	checkIntEqual(t, "content downloads", mp.Requests("content"), 1)

	page, err := manager.GetMessages(ctx, models.ConversationFilter{})
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	checkIntEqual(t, "stored conversations", int(page.Total), 2)
}
