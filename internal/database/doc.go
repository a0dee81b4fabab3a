// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package database is the MongoDB conversation store.
//
// # Overview
//
// Each document in the conversations collection holds every message exchanged
// with one counterparty phone number. Messages are embedded in ascending
// creation order and carry the provider's id, which is unique within a document.
//
// # Architecture
//
//   - mongo.go: client lifecycle and collection handle
//   - schema.go: index set (dropped and recreated on schema upgrades)
//   - conversations.go: lookup and merge of incoming messages
//   - filter.go: listing filters and pagination
//   - retention.go: message-level retention
//
// # Merge Semantics
//
// A new phone number is inserted as one document. For an existing document
// every new message becomes a conditional update filtered on
// "messages.id $ne <id>", so concurrent writers can never store the same
// message twice and a merge with nothing new performs no write at all.
// All updates for a conversation are sent in a single ordered bulk write.
//
// # Usage Example
//
//	store, err := database.Connect(ctx, cfg.Mongo)
//	if err != nil {
//	    return err
//	}
//	defer store.Close(context.Background())
//
//	if err := store.EnsureSchema(ctx); err != nil {
//	    return err
//	}
//	res, err := store.MergeConversation(ctx, "+15551230000", myPhone, msgs)
package database
