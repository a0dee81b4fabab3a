// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/database"
	"github.com/tomtom215/smsarchive/internal/events"
	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/models"
	"github.com/tomtom215/smsarchive/internal/provider"
	"github.com/tomtom215/smsarchive/internal/state"
)

// ErrSyncInProgress is reported when a run is requested while another is
// active, in this process or in another one sharing the state store.
var ErrSyncInProgress = state.ErrSyncInProgress

// ErrConversationNotFound is returned for a phone number with no stored
// conversation.
var ErrConversationNotFound = database.ErrNotFound

// ConversationStore persists conversations.
type ConversationStore interface {
	EnsureSchema(ctx context.Context) error
	ExistingMessageIDs(ctx context.Context, phone string) (map[models.ProviderID]struct{}, error)
	MergeConversation(ctx context.Context, phone, myPhone string, msgs []models.Message) (models.MergeResult, error)
	GetConversation(ctx context.Context, phone string) (*models.Conversation, error)
	ListConversations(ctx context.Context, f models.ConversationFilter) (*models.ConversationPage, error)
	GetStats(ctx context.Context) (*models.MessageStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// MessageSource is the provider API.
type MessageSource interface {
	AccessToken(ctx context.Context) (string, error)
	FetchAllMessages(ctx context.Context, daysBack int) (*provider.FetchResult, error)
}

// AttachmentUploader copies provider attachments into blob storage.
type AttachmentUploader interface {
	DownloadAndUpload(ctx context.Context, sourceURI, fileName, contentType, authToken string) (string, error)
}

// StateStore holds sync bookkeeping that must survive restarts.
type StateStore interface {
	SchemaVersion() (int, error)
	SetSchemaVersion(v int) error
	AcquireRunLock(owner string, ttl time.Duration) (func(), error)
	RecordSyncResult(res *models.SyncResult) error
	LastSyncResult() (*models.SyncResult, error)
}

// Dependencies are the collaborators of a Manager. Events may be nil.
type Dependencies struct {
	Store       ConversationStore
	Source      MessageSource
	Attachments AttachmentUploader
	State       StateStore
	Events      events.Publisher
}

// Manager orchestrates message synchronization.
type Manager struct {
	store       ConversationStore
	source      MessageSource
	attachments AttachmentUploader
	state       StateStore
	events      events.Publisher
	cfg         *config.Config

	syncMu sync.Mutex // held for the duration of a run

	mu              sync.RWMutex
	running         bool
	lastResult      *models.SyncResult
	onSyncCompleted func(res models.SyncResult)

	stopChan chan struct{}
	wg       sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a sync manager.
func NewManager(deps Dependencies, cfg *config.Config) *Manager {
	m := &Manager{
		store:       deps.Store,
		source:      deps.Source,
		attachments: deps.Attachments,
		state:       deps.State,
		events:      deps.Events,
		cfg:         cfg,
		stopChan:    make(chan struct{}),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	if m.events == nil {
		m.events = events.NoopPublisher{}
	}

	logging.Info().
		Int("days_back", cfg.Sync.DaysBack).
		Dur("interval", cfg.Sync.Interval).
		Bool("scheduled", cfg.Sync.Enabled).
		Int("retention_days", cfg.Sync.RetentionDays).
		Int("attachment_batch", cfg.Attachments.BatchSize).
		Msg("Sync manager config loaded")

	return m
}

// SetOnSyncCompleted sets the callback invoked after every run.
func (m *Manager) SetOnSyncCompleted(callback func(res models.SyncResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSyncCompleted = callback
}

// LastResult returns the most recent run result, falling back to the one
// recorded in the state store by a previous process.
func (m *Manager) LastResult() (*models.SyncResult, bool) {
	m.mu.RLock()
	res := m.lastResult
	m.mu.RUnlock()
	if res != nil {
		out := *res
		return &out, true
	}

	stored, err := m.state.LastSyncResult()
	if err != nil {
		return nil, false
	}
	return stored, true
}

// GetMessages lists conversations matching f.
func (m *Manager) GetMessages(ctx context.Context, f models.ConversationFilter) (*models.ConversationPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	page, err := m.store.ListConversations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return page, nil
}

// GetConversation returns the full conversation with phone, or an error
// matching ErrConversationNotFound.
func (m *Manager) GetConversation(ctx context.Context, phone string) (*models.Conversation, error) {
	if phone == "" {
		return nil, fmt.Errorf("get conversation: %w", ErrConversationNotFound)
	}
	conv, err := m.store.GetConversation(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// GetStats aggregates message counts over the whole archive.
func (m *Manager) GetStats(ctx context.Context) (*models.MessageStats, error) {
	stats, err := m.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("message stats: %w", err)
	}
	return stats, nil
}

// DeleteOldMessages removes messages older than daysToKeep days and returns
// how many were removed.
func (m *Manager) DeleteOldMessages(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep < 1 {
		return 0, fmt.Errorf("daysToKeep must be at least 1 (got %d)", daysToKeep)
	}
	cutoff := m.now().UTC().AddDate(0, 0, -daysToKeep)
	removed, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("delete old messages: %w", err)
	}
	return removed, nil
}

// TriggerSync runs the pipeline once with the configured window. It returns
// ErrSyncInProgress instead of waiting when a run is already active.
func (m *Manager) TriggerSync(ctx context.Context) (models.SyncResult, error) {
	res := m.SyncMessages(ctx, m.cfg.Sync.DaysBack)
	if !res.Success && res.Error == ErrSyncInProgress.Error() {
		return res, ErrSyncInProgress
	}
	return res, nil
}

// Start begins periodic synchronization when scheduling is enabled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if !m.cfg.Sync.Enabled {
		logging.Info().Msg("Scheduled sync disabled (SYNC_ENABLED=false), sync runs only on demand")
		return nil
	}

	m.wg.Add(1)
	go m.syncLoop(ctx)
	logging.Info().Dur("interval", m.cfg.Sync.Interval).Bool("run_on_startup", m.cfg.Sync.RunOnStartup).Msg("Sync manager started")
	return nil
}

// Stop ends the periodic loop and waits for an in-flight run to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	// Cancel an in-flight run when Stop is called.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if m.cfg.Sync.RunOnStartup {
		m.scheduledRun(ctx)
	}

	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scheduledRun(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) scheduledRun(ctx context.Context) {
	res := m.SyncMessages(ctx, m.cfg.Sync.DaysBack)
	if !res.Success {
		logging.Warn().Str("error", res.Error).Msg("Scheduled sync failed (will retry next interval)")
		return
	}
	if m.cfg.Sync.RetentionDays > 0 {
		if _, err := m.DeleteOldMessages(ctx, m.cfg.Sync.RetentionDays); err != nil {
			logging.Error().Err(err).Msg("Retention after sync failed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
