// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package models holds the message, conversation and sync result types shared
// by the provider client, the conversation store, the sync manager and the API.
package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ProviderID is an identifier assigned by the telephony provider. The provider
// emits ids as JSON numbers or strings; both decode to the same string form.
type ProviderID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ProviderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid provider id %s: %w", data, err)
		}
		*id = ProviderID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("invalid provider id %s", data)
	}
	*id = ProviderID(data)
	return nil
}

// Direction of a message relative to the account.
type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
)

// Party is one end of a message.
type Party struct {
	PhoneNumber string `json:"phoneNumber" bson:"phoneNumber"`
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
}

// Attachment is a file attached to a message. AzureURL is set once the file
// has been copied to blob storage and is never replaced afterwards.
type Attachment struct {
	ID          ProviderID `json:"id" bson:"id"`
	URI         string     `json:"uri" bson:"uri"`
	ContentType string     `json:"contentType" bson:"contentType"`
	FileName    string     `json:"fileName,omitempty" bson:"fileName,omitempty"`
	AzureURL    string     `json:"azureUrl,omitempty" bson:"azureUrl,omitempty"`
}

// Processed reports whether the attachment already has a durable copy.
func (a *Attachment) Processed() bool {
	return a.AzureURL != ""
}

// Message is a single SMS record as returned by the provider and as stored
// inside a conversation.
type Message struct {
	ID            ProviderID   `json:"id" bson:"id"`
	Direction     Direction    `json:"direction" bson:"direction"`
	From          Party        `json:"from" bson:"from"`
	To            []Party      `json:"to" bson:"to"`
	Subject       string       `json:"subject" bson:"subject"`
	CreationTime  time.Time    `json:"creationTime" bson:"creationTime"`
	Attachments   []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
	MessageStatus string       `json:"messageStatus,omitempty" bson:"messageStatus,omitempty"`
	ReadStatus    string       `json:"readStatus,omitempty" bson:"readStatus,omitempty"`
	Type          string       `json:"type,omitempty" bson:"type,omitempty"`
}

// Counterparty returns the phone number on the other end of the message:
// the sender for inbound messages, the first recipient for outbound ones.
// An empty string means the message cannot be attributed to a conversation.
func (m *Message) Counterparty() string {
	switch m.Direction {
	case DirectionInbound:
		return m.From.PhoneNumber
	case DirectionOutbound:
		if len(m.To) > 0 {
			return m.To[0].PhoneNumber
		}
	}
	return ""
}

// DedupeByID drops repeated message ids, keeping the first occurrence.
func DedupeByID(msgs []Message) []Message {
	seen := make(map[ProviderID]struct{}, len(msgs))
	out := make([]Message, 0, len(msgs))
	for i := range msgs {
		if _, ok := seen[msgs[i].ID]; ok {
			continue
		}
		seen[msgs[i].ID] = struct{}{}
		out = append(out, msgs[i])
	}
	return out
}

// SortByCreationTime orders messages oldest first. Equal timestamps keep their
// relative order.
func SortByCreationTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreationTime.Before(msgs[j].CreationTime)
	})
}

// FilterNew returns the messages whose id is not in existing.
func FilterNew(existing map[ProviderID]struct{}, incoming []Message) []Message {
	out := make([]Message, 0, len(incoming))
	for i := range incoming {
		if _, ok := existing[incoming[i].ID]; !ok {
			out = append(out, incoming[i])
		}
	}
	return out
}

// GroupByCounterparty buckets messages by Counterparty. Messages without a
// counterparty are returned separately. Keys come back sorted so callers
// process conversations in a stable order.
func GroupByCounterparty(msgs []Message) (groups map[string][]Message, keys []string, orphans []Message) {
	groups = make(map[string][]Message)
	for i := range msgs {
		phone := msgs[i].Counterparty()
		if phone == "" {
			orphans = append(orphans, msgs[i])
			continue
		}
		if _, ok := groups[phone]; !ok {
			keys = append(keys, phone)
		}
		groups[phone] = append(groups[phone], msgs[i])
	}
	sort.Strings(keys)
	return groups, keys, orphans
}
