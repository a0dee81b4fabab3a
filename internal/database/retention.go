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
	"github.com/tomtom215/smsarchive/internal/models"
)

// GetStats scans every conversation and aggregates message counts.
func (s *Store) GetStats(ctx context.Context) (stats *models.MessageStats, err error) {
	start := time.Now()
	defer func() { observe("get_stats", start, err) }()

	stats = &models.MessageStats{}
	err = s.forEach(ctx, func(c *models.Conversation) error {
		stats.Add(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteOlderThan removes messages created before cutoff. Conversations left
// without messages are deleted. It returns the number of messages removed.
// Each conversation is trimmed by a single server-side update.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (removed int, err error) {
	start := time.Now()
	defer func() { observe("delete_older_than", start, err) }()

	cutoff = cutoff.UTC()
	var deletedDocs int
	for {
		before, err := s.trimOne(ctx, cutoff)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return removed, err
		}
		removed += before.TrimBefore(cutoff)

		deleted, err := s.deleteIfEmpty(ctx, before.PhoneNumber)
		if err != nil {
			return removed, err
		}
		if deleted {
			deletedDocs++
		}
	}

	logging.Ctx(ctx).Info().
		Time("cutoff", cutoff).
		Int("messages_removed", removed).
		Int("conversations_deleted", deletedDocs).
		Msg("Applied message retention")
	return removed, nil
}

// trimOne trims the next conversation holding messages older than cutoff and
// returns the message times it held before the update.
func (s *Store) trimOne(ctx context.Context, cutoff time.Time) (*models.Conversation, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.D{
			{Key: "phoneNumber", Value: 1},
			{Key: "messages.creationTime", Value: 1},
		})

	var before models.Conversation
	err := s.coll.FindOneAndUpdate(ctx, staleFilter(cutoff), trimPipeline(cutoff), opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to trim conversation: %w", err)
	}
	return &before, nil
}

// deleteIfEmpty removes the conversation only while it still holds no
// messages, so a merge that lands after the trim keeps its document.
func (s *Store) deleteIfEmpty(ctx context.Context, phone string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.D{
		{Key: "phoneNumber", Value: phone},
		{Key: "messages", Value: bson.D{{Key: "$size", Value: 0}}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return res.DeletedCount == 1, nil
}

func staleFilter(cutoff time.Time) bson.D {
	return bson.D{{Key: "messages.creationTime", Value: bson.D{{Key: "$lt", Value: cutoff}}}}
}

// trimPipeline drops messages older than cutoff and recomputes the derived
// fields from what remains. An emptied conversation loses its time bounds so
// a later $min/$max push sets them afresh.
func trimPipeline(cutoff time.Time) mongo.Pipeline {
	nonEmpty := bson.D{{Key: "$gt", Value: bson.A{bson.D{{Key: "$size", Value: "$messages"}}, 0}}}
	bound := func(op string) bson.D {
		return bson.D{{Key: "$cond", Value: bson.A{
			nonEmpty,
			bson.D{{Key: op, Value: "$messages.creationTime"}},
			"$$REMOVE",
		}}}
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$messages"},
			{Key: "cond", Value: bson.D{{Key: "$gte", Value: bson.A{"$$this.creationTime", cutoff}}}},
		}}}}}}},
		{{Key: "$set", Value: bson.D{
			{Key: "messageCount", Value: bson.D{{Key: "$size", Value: "$messages"}}},
			{Key: "firstMessageTime", Value: bound("$min")},
			{Key: "lastMessageTime", Value: bound("$max")},
		}}},
	}
}

// forEach streams every conversation document through fn.
func (s *Store) forEach(ctx context.Context, fn func(*models.Conversation) error) error {
	cursor, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to scan conversations: %w", err)
	}
	defer func() { _ = cursor.Close(context.Background()) }()

	for cursor.Next(ctx) {
		var c models.Conversation
		if err := cursor.Decode(&c); err != nil {
			return fmt.Errorf("failed to decode conversation: %w", err)
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	return cursor.Err()
}
