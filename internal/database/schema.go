// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/smsarchive/internal/logging"
)

// indexModels is the complete index set of the conversations collection.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().SetName("phone_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "lastMessageTime", Value: -1}},
			Options: options.Index().SetName("last_message_time"),
		},
		{
			Keys:    bson.D{{Key: "firstMessageTime", Value: 1}},
			Options: options.Index().SetName("first_message_time"),
		},
		{
			Keys:    bson.D{{Key: "messages.creationTime", Value: -1}},
			Options: options.Index().SetName("message_creation_time"),
		},
		{
			Keys:    bson.D{{Key: "messages.subject", Value: "text"}},
			Options: options.Index().SetName("message_subject_text"),
		},
	}
}

// EnsureSchema drops every index on the collection and recreates the
// expected set. Callers gate it on a persisted schema version so it runs
// once per upgrade rather than on every sync.
func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { observe("ensure_schema", start, err) }()

	// DropAll fails with NamespaceNotFound on a fresh database.
	if err := s.coll.Indexes().DropAll(ctx); err != nil && !isNamespaceNotFound(err) {
		return fmt.Errorf("failed to drop indexes: %w", err)
	}

	names, err := s.coll.Indexes().CreateMany(ctx, indexModels())
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Info().Strs("indexes", names).Msg("Conversation store indexes rebuilt")
	return nil
}

func isNamespaceNotFound(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == 26 || ce.Name == "NamespaceNotFound"
	}
	return false
}
