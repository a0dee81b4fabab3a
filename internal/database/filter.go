// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package database

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/smsarchive/internal/models"
)

// buildFilter translates a ConversationFilter into a query document.
// The time range matches conversations that overlap [StartDate, EndDate].
func buildFilter(f *models.ConversationFilter) bson.D {
	filter := bson.D{}
	if f.Phone != "" {
		filter = append(filter, bson.E{Key: "phoneNumber", Value: bson.D{{Key: "$regex", Value: regexp.QuoteMeta(f.Phone)}}})
	}
	if f.Search != "" {
		filter = append(filter, bson.E{Key: "$text", Value: bson.D{{Key: "$search", Value: f.Search}}})
	}
	if f.StartDate != nil {
		filter = append(filter, bson.E{Key: "lastMessageTime", Value: bson.D{{Key: "$gte", Value: f.StartDate.UTC()}}})
	}
	if f.EndDate != nil {
		filter = append(filter, bson.E{Key: "firstMessageTime", Value: bson.D{{Key: "$lte", Value: f.EndDate.UTC()}}})
	}
	return filter
}

// findOptions sorts newest conversation first and applies pagination.
// Limit 0 disables pagination.
func findOptions(f *models.ConversationFilter) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{
		{Key: "lastMessageTime", Value: -1},
		{Key: "phoneNumber", Value: 1},
	})
	if f.Limit > 0 {
		page := max(f.Page, 1)
		opts.SetSkip(int64((page - 1) * f.Limit)).SetLimit(int64(f.Limit))
	}
	return opts
}

// ListConversations returns the conversations matching f.
func (s *Store) ListConversations(ctx context.Context, f models.ConversationFilter) (page *models.ConversationPage, err error) {
	start := time.Now()
	defer func() { observe("list_conversations", start, err) }()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	filter := buildFilter(&f)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	cursor, err := s.coll.Find(ctx, filter, findOptions(&f))
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	convs := []models.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	return newPage(convs, total, f), nil
}

func newPage(convs []models.Conversation, total int64, f models.ConversationFilter) *models.ConversationPage {
	p := &models.ConversationPage{
		Conversations: convs,
		Total:         total,
		Page:          max(f.Page, 1),
		Limit:         f.Limit,
		TotalPages:    1,
	}
	if f.Limit > 0 {
		p.TotalPages = int((total + int64(f.Limit) - 1) / int64(f.Limit))
	}
	return p
}
