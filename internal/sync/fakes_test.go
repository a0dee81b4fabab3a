// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/events"
	"github.com/tomtom215/smsarchive/internal/models"
	"github.com/tomtom215/smsarchive/internal/provider"
	"github.com/tomtom215/smsarchive/internal/state"
)

const (
	myPhone = "+15559990000"
	phoneA  = "+15550001111"
	phoneB  = "+15550002222"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestConfig() *config.Config {
	return &config.Config{
		Attachments: config.AttachmentsConfig{
			Folder:     "sms-uploads",
			BatchSize:  3,
			BatchPause: 2 * time.Second,
		},
		Sync: config.SyncConfig{
			MyPhoneNumber: myPhone,
			DaysBack:      30,
			Enabled:       false,
			Interval:      time.Hour,
			Timeout:       time.Minute,
		},
		State: config.StateConfig{
			LockTTL: time.Minute,
		},
	}
}

// fakeStore mirrors the merge rules of the Mongo store in memory.
type fakeStore struct {
	mu            sync.Mutex
	convs         map[string]*models.Conversation
	merges        int
	schemaCalls   int
	mergeErr      map[string]error
	deleteCutoff  time.Time
	lastFilter    models.ConversationFilter
	existingCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]*models.Conversation), mergeErr: make(map[string]error)}
}

func (s *fakeStore) EnsureSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaCalls++
	return nil
}

func (s *fakeStore) GetConversation(_ context.Context, phone string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[phone]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *c
	cp.Messages = append([]models.Message(nil), c.Messages...)
	return &cp, nil
}

func (s *fakeStore) ExistingMessageIDs(_ context.Context, phone string) (map[models.ProviderID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existingCalls++
	if c, ok := s.convs[phone]; ok {
		return c.MessageIDs(), nil
	}
	return map[models.ProviderID]struct{}{}, nil
}

func (s *fakeStore) MergeConversation(_ context.Context, phone, mine string, msgs []models.Message) (models.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mergeErr[phone]; err != nil {
		return models.MergeResult{}, err
	}
	s.merges++
	c, ok := s.convs[phone]
	if !ok {
		s.convs[phone] = models.NewConversation(phone, mine, msgs, baseTime)
		return models.MergeResult{Created: true, Added: s.convs[phone].MessageCount}, nil
	}
	added := c.Merge(msgs, baseTime)
	return models.MergeResult{Added: added, Skipped: len(msgs) - added}, nil
}

func (s *fakeStore) ListConversations(_ context.Context, f models.ConversationFilter) (*models.ConversationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	phones := make([]string, 0, len(s.convs))
	for p := range s.convs {
		phones = append(phones, p)
	}
	sort.Strings(phones)
	page := &models.ConversationPage{Page: f.Page, Limit: f.Limit, Total: int64(len(phones)), TotalPages: 1}
	for _, p := range phones {
		page.Conversations = append(page.Conversations, *s.convs[p])
	}
	return page, nil
}

func (s *fakeStore) GetStats(context.Context) (*models.MessageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.MessageStats{}
	for _, c := range s.convs {
		stats.Add(c)
	}
	return stats, nil
}

func (s *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCutoff = cutoff
	removed := 0
	for phone, c := range s.convs {
		removed += c.TrimBefore(cutoff)
		if c.MessageCount == 0 {
			delete(s.convs, phone)
		}
	}
	return removed, nil
}

func (s *fakeStore) conversation(phone string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[phone]
}

// fakeSource serves a fixed listing.
type fakeSource struct {
	mu         sync.Mutex
	messages   []models.Message
	pages      int
	partialErr error
	tokenErr   error
	tokenCalls int
	fetchCalls int
	// block, when set, is closed by the test to let FetchAllMessages return.
	block chan struct{}
}

func (f *fakeSource) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "access-token", nil
}

func (f *fakeSource) FetchAllMessages(ctx context.Context, _ int) (*provider.FetchResult, error) {
	f.mu.Lock()
	f.fetchCalls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &provider.FetchResult{}, ctx.Err()
		}
	}

	msgs := make([]models.Message, len(f.messages))
	copy(msgs, f.messages)
	for i := range msgs {
		msgs[i].Attachments = append([]models.Attachment(nil), msgs[i].Attachments...)
	}
	pages := f.pages
	if pages == 0 && f.partialErr == nil {
		pages = 1
	}
	return &provider.FetchResult{
		Messages: msgs,
		Pages:    pages,
		Partial:  f.partialErr != nil,
		Err:      f.partialErr,
	}, nil
}

// fakeUploader records uploads and fails for the URIs listed in fail.
type fakeUploader struct {
	mu     sync.Mutex
	calls  []string
	tokens []string
	fail   map[string]bool
}

func (u *fakeUploader) DownloadAndUpload(_ context.Context, sourceURI, fileName, _, authToken string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, sourceURI)
	u.tokens = append(u.tokens, authToken)
	if u.fail[sourceURI] {
		return "", errors.New("download failed with status 404")
	}
	return "https://blob.example/sms-uploads/" + fileName, nil
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type recordingPublisher struct {
	mu            sync.Mutex
	completed     []*events.SyncCompleted
	conversations []*events.ConversationUpdated
}

func (p *recordingPublisher) PublishSyncCompleted(_ context.Context, ev *events.SyncCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, ev)
	return nil
}

func (p *recordingPublisher) PublishConversationUpdated(_ context.Context, ev *events.ConversationUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversations = append(p.conversations, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type testHarness struct {
	manager   *Manager
	store     *fakeStore
	source    *fakeSource
	uploader  *fakeUploader
	state     *state.Store
	publisher *recordingPublisher
	sleeps    []time.Duration
}

func newHarness(t *testing.T, msgs []models.Message) *testHarness {
	t.Helper()

	st, err := state.OpenInMemory()
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := &testHarness{
		store:     newFakeStore(),
		source:    &fakeSource{messages: msgs},
		uploader:  &fakeUploader{fail: map[string]bool{}},
		state:     st,
		publisher: &recordingPublisher{},
	}
	h.manager = NewManager(Dependencies{
		Store:       h.store,
		Source:      h.source,
		Attachments: h.uploader,
		State:       st,
		Events:      h.publisher,
	}, newTestConfig())
	h.manager.now = func() time.Time { return baseTime }
	h.manager.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func inbound(id, from string, minute int) models.Message {
	return models.Message{
		ID:           models.ProviderID(id),
		Direction:    models.DirectionInbound,
		From:         models.Party{PhoneNumber: from},
		To:           []models.Party{{PhoneNumber: myPhone}},
		Subject:      "message " + id,
		CreationTime: baseTime.Add(time.Duration(minute) * time.Minute),
		Type:         "SMS",
	}
}

func outbound(id, to string, minute int) models.Message {
	m := inbound(id, myPhone, minute)
	m.Direction = models.DirectionOutbound
	m.To = []models.Party{{PhoneNumber: to}}
	return m
}

func withAttachment(m models.Message, attID, contentType string) models.Message {
	m.Attachments = append(m.Attachments, models.Attachment{
		ID:          models.ProviderID(attID),
		URI:         fmt.Sprintf("https://media.example/restapi/v1.0/account/~/extension/~/message-store/%s/content/%s", m.ID, attID),
		ContentType: contentType,
	})
	return m
}
