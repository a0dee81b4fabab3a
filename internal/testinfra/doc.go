// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to manage Docker containers for integration tests,
// providing realistic testing environments that closely match production.
//
// # Containers
//
//   - MongoContainer: single-node MongoDB for the conversation store
//   - AzuriteContainer: Azure Storage emulator for attachment uploads
//
// # Mock Provider
//
// MockProvider serves the telephony provider's token, message-store and
// attachment content endpoints from an httptest.Server:
//
//	func TestSyncEndToEnd(t *testing.T) {
//	    ctx := context.Background()
//	    mongo, err := testinfra.NewMongoContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, mongo.Container)
//
//	    provider := testinfra.NewMockProvider(t)
//	    provider.AddMessage(map[string]any{"id": 1, "direction": "Inbound", ...})
//	    // ...
//	}
//
// # CI Considerations
//
// These tests require Docker and network access. In CI:
//   - Container images are cached between runs
//   - Tests are skipped gracefully if Docker is unavailable
//
// Run with:
//
//	go test -tags integration ./...
package testinfra
