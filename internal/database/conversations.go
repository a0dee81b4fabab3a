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

// ErrNotFound is returned when no conversation exists for a phone number.
var ErrNotFound = errors.New("conversation not found")

// GetConversation loads the full document for phone.
func (s *Store) GetConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var conv models.Conversation
	err := s.coll.FindOne(ctx, bson.D{{Key: "phoneNumber", Value: phone}}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// ExistingMessageIDs returns the ids already stored for phone. A missing
// conversation yields an empty set.
func (s *Store) ExistingMessageIDs(ctx context.Context, phone string) (map[models.ProviderID]struct{}, error) {
	ids, _, err := s.existingIDs(ctx, phone)
	return ids, err
}

func (s *Store) existingIDs(ctx context.Context, phone string) (map[models.ProviderID]struct{}, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var doc struct {
		Messages []struct {
			ID models.ProviderID `bson:"id"`
		} `bson:"messages"`
	}
	opts := options.FindOne().SetProjection(bson.D{{Key: "messages.id", Value: 1}})
	err := s.coll.FindOne(ctx, bson.D{{Key: "phoneNumber", Value: phone}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[models.ProviderID]struct{}{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read message ids: %w", err)
	}

	ids := make(map[models.ProviderID]struct{}, len(doc.Messages))
	for _, m := range doc.Messages {
		ids[m.ID] = struct{}{}
	}
	return ids, true, nil
}

// MergeConversation stores the messages of msgs that the conversation with
// phone does not hold yet. The first batch for a phone number creates the
// document. Nothing is written when every message is already present.
func (s *Store) MergeConversation(ctx context.Context, phone, myPhone string, msgs []models.Message) (res models.MergeResult, err error) {
	start := time.Now()
	defer func() { observe("merge_conversation", start, err) }()

	msgs = models.DedupeByID(msgs)
	if len(msgs) == 0 {
		return res, nil
	}
	now := s.now().UTC()

	existing, found, err := s.existingIDs(ctx, phone)
	if err != nil {
		return res, err
	}

	if !found {
		created, err := s.insertConversation(ctx, models.NewConversation(phone, myPhone, msgs, now))
		if err != nil {
			return res, err
		}
		if created {
			return models.MergeResult{Created: true, Added: len(msgs)}, nil
		}
		// Another writer created the document first; merge into it instead.
		if existing, _, err = s.existingIDs(ctx, phone); err != nil {
			return res, err
		}
	}

	fresh := models.FilterNew(existing, msgs)
	if len(fresh) == 0 {
		return models.MergeResult{Skipped: len(msgs)}, nil
	}
	models.SortByCreationTime(fresh)

	added, err := s.appendMessages(ctx, phone, fresh, now)
	if err != nil {
		return res, err
	}

	logging.Ctx(ctx).Debug().
		Str("phone", logging.MaskPhone(phone)).
		Int("added", added).
		Int("already_stored", len(msgs)-len(fresh)).
		Msg("Merged messages into conversation")

	return models.MergeResult{Added: added, Skipped: len(msgs) - added}, nil
}

// insertConversation reports false when the phone number already exists.
func (s *Store) insertConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return true, nil
}

// appendMessages pushes each message only if its id is absent, keeping the
// array sorted and the derived fields in step. It returns how many were added.
func (s *Store) appendMessages(ctx context.Context, phone string, msgs []models.Message, now time.Time) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	writes := make([]mongo.WriteModel, 0, len(msgs))
	for i := range msgs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(appendFilter(phone, msgs[i].ID)).
			SetUpdate(appendUpdate(&msgs[i], now)))
	}

	result, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("failed to append messages: %w", err)
	}
	return int(result.ModifiedCount), nil
}

func appendFilter(phone string, id models.ProviderID) bson.D {
	return bson.D{
		{Key: "phoneNumber", Value: phone},
		{Key: "messages.id", Value: bson.D{{Key: "$ne", Value: id}}},
	}
}

func appendUpdate(m *models.Message, now time.Time) bson.D {
	return bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: bson.D{
			{Key: "$each", Value: bson.A{m}},
			{Key: "$sort", Value: bson.D{{Key: "creationTime", Value: 1}}},
		}}}},
		{Key: "$inc", Value: bson.D{{Key: "messageCount", Value: 1}}},
		{Key: "$min", Value: bson.D{{Key: "firstMessageTime", Value: m.CreationTime}}},
		{Key: "$max", Value: bson.D{{Key: "lastMessageTime", Value: m.CreationTime}}},
		{Key: "$set", Value: bson.D{{Key: "lastSyncedAt", Value: now}}},
	}
}
