// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/smsarchive/internal/events"
	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
	"github.com/tomtom215/smsarchive/internal/models"
)

// SchemaVersion is the conversation store index layout this build expects.
// Bump it whenever indexModels changes.
const SchemaVersion = 1

// Failure stages reported in metrics and logs.
const (
	stageLock   = "lock"
	stageSchema = "schema"
	stageAuth   = "auth"
	stageFetch  = "fetch"
	stageMerge  = "merge"
)

// SyncMessages runs the full pipeline for the last daysBack days. It never
// returns an error; the outcome is described by the result. A daysBack of
// zero or less uses the configured window.
func (m *Manager) SyncMessages(ctx context.Context, daysBack int) models.SyncResult {
	if daysBack <= 0 {
		daysBack = m.cfg.Sync.DaysBack
	}
	ctx = logging.ContextWithComponent(logging.ContextWithNewCorrelationID(ctx), "sync")
	log := logging.Ctx(ctx)

	res := models.SyncResult{
		DaysBack:      daysBack,
		StartedAt:     m.now().UTC(),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	}

	if !m.syncMu.TryLock() {
		log.Warn().Msg("Sync requested while another run is active, skipping")
		res.Error = ErrSyncInProgress.Error()
		return res
	}
	defer m.syncMu.Unlock()

	release, err := m.state.AcquireRunLock(res.CorrelationID, m.cfg.State.LockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Could not take the sync run lock")
		res.Error = ErrSyncInProgress.Error()
		if !errors.Is(err, ErrSyncInProgress) {
			res.Error = fmt.Sprintf("run lock failed: %v", err)
		}
		m.finish(ctx, &res, stageLock)
		return res
	}
	defer release()

	if m.cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Sync.Timeout)
		defer cancel()
	}

	log.Info().Int("days_back", daysBack).Msg("Starting message sync")
	stage := m.run(ctx, &res)
	m.finish(ctx, &res, stage)
	return res
}

// run executes the pipeline and returns the failed stage, or "" on success.
func (m *Manager) run(ctx context.Context, res *models.SyncResult) string {
	log := logging.Ctx(ctx)

	if err := m.ensureSchema(ctx); err != nil {
		res.Error = fmt.Sprintf("schema setup failed: %v", err)
		return stageSchema
	}

	if _, err := m.source.AccessToken(ctx); err != nil {
		res.Error = fmt.Sprintf("authentication failed: %v", err)
		return stageAuth
	}

	fetched, err := m.source.FetchAllMessages(ctx, res.DaysBack)
	if err != nil {
		res.Error = fmt.Sprintf("message fetch failed: %v", err)
		return stageFetch
	}
	if fetched.Partial {
		if fetched.Pages == 0 {
			res.Error = fmt.Sprintf("message fetch failed: %v", fetched.Err)
			return stageFetch
		}
		res.Partial = true
		res.Warning = "message listing truncated"
		if fetched.Err != nil {
			res.Warning = fetched.Err.Error()
		}
		log.Warn().Err(fetched.Err).Int("pages", fetched.Pages).Msg("Message listing truncated, syncing the pages that were fetched")
	}

	res.Fetched = len(fetched.Messages)
	unique := models.DedupeByID(fetched.Messages)
	res.Duplicates = res.Fetched - len(unique)

	groups, phones, orphans := models.GroupByCounterparty(unique)
	if len(orphans) > 0 {
		res.Skipped += len(orphans)
		log.Warn().Int("messages", len(orphans)).Msg("Skipping messages without a counterparty phone number")
	}

	log.Info().
		Int("fetched", res.Fetched).
		Int("duplicates", res.Duplicates).
		Int("conversations", len(phones)).
		Msg("Fetched messages, merging conversations")

	for i, phone := range phones {
		if ctx.Err() != nil {
			for _, rest := range phones[i:] {
				res.Skipped += len(groups[rest])
			}
			res.Error = fmt.Sprintf("sync interrupted: %v", ctx.Err())
			return stageMerge
		}

		out := m.syncConversation(ctx, phone, groups[phone])
		res.AttachmentsDownloaded += out.downloaded
		res.AttachmentsFailed += out.failed
		if out.err != nil {
			res.Skipped += len(groups[phone])
			logging.Ctx(ctx).Error().Err(out.err).
				Str("phone", logging.MaskPhone(phone)).
				Int("messages", len(groups[phone])).
				Msg("Conversation sync failed, continuing with the next one")
			continue
		}

		res.Synced += out.merge.Added
		res.Skipped += out.merge.Skipped
		if out.merge.Changed() {
			res.ConversationsUpdated++
			m.publishConversation(ctx, phone, out.merge)
		}
	}

	res.Success = true
	return ""
}

type conversationOutcome struct {
	merge      models.MergeResult
	downloaded int
	failed     int
	err        error
}

// syncConversation stores the new messages of one counterparty.
func (m *Manager) syncConversation(ctx context.Context, phone string, msgs []models.Message) conversationOutcome {
	var out conversationOutcome

	existing, err := m.store.ExistingMessageIDs(ctx, phone)
	if err != nil {
		out.err = err
		return out
	}

	fresh := models.FilterNew(existing, msgs)
	if len(fresh) == 0 {
		out.merge.Skipped = len(msgs)
		return out
	}

	out.downloaded, out.failed = m.processAttachments(ctx, phone, fresh)

	models.SortByCreationTime(fresh)
	merge, err := m.store.MergeConversation(ctx, phone, m.cfg.Sync.MyPhoneNumber, fresh)
	if err != nil {
		out.err = fmt.Errorf("merge failed: %w", err)
		return out
	}
	merge.Skipped += len(msgs) - len(fresh)
	out.merge = merge
	return out
}

// ensureSchema rebuilds the store indexes when the recorded version is behind.
func (m *Manager) ensureSchema(ctx context.Context) error {
	current, err := m.state.SchemaVersion()
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		return nil
	}

	logging.Ctx(ctx).Info().Int("from", current).Int("to", SchemaVersion).Msg("Upgrading conversation store schema")
	if err := m.store.EnsureSchema(ctx); err != nil {
		return err
	}
	return m.state.SetSchemaVersion(SchemaVersion)
}

// finish records the outcome of a run everywhere it is observed.
func (m *Manager) finish(ctx context.Context, res *models.SyncResult, failedStage string) {
	duration := m.now().UTC().Sub(res.StartedAt)
	res.DurationMS = duration.Milliseconds()

	metrics.RecordSyncOperation(duration, metrics.SyncSummary{
		Fetched:              res.Fetched,
		Duplicates:           res.Duplicates,
		Synced:               res.Synced,
		Skipped:              res.Skipped,
		ConversationsUpdated: res.ConversationsUpdated,
		Partial:              res.Partial,
	}, failedStage)

	log := logging.Ctx(ctx)
	event := log.Info()
	if !res.Success {
		event = log.Error().Str("stage", failedStage).Str("error", res.Error)
	}
	event.
		Int("fetched", res.Fetched).
		Int("synced", res.Synced).
		Int("skipped", res.Skipped).
		Int("conversations_updated", res.ConversationsUpdated).
		Int("attachments_downloaded", res.AttachmentsDownloaded).
		Int("attachments_failed", res.AttachmentsFailed).
		Bool("partial", res.Partial).
		Int64("duration_ms", res.DurationMS).
		Msg("Message sync finished")

	// The run context may already be cancelled; bookkeeping still has to happen.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := m.state.RecordSyncResult(res); err != nil {
		log.Warn().Err(err).Msg("Failed to record sync result")
	}
	if err := m.events.PublishSyncCompleted(bg, events.NewSyncCompleted(res)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish sync completed event")
	}

	m.mu.Lock()
	stored := *res
	m.lastResult = &stored
	callback := m.onSyncCompleted
	m.mu.Unlock()

	if callback != nil {
		callback(*res)
	}
}

func (m *Manager) publishConversation(ctx context.Context, phone string, merge models.MergeResult) {
	ev := events.NewConversationUpdated(phone, merge, logging.CorrelationIDFromContext(ctx))
	if err := m.events.PublishConversationUpdated(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		logging.Ctx(ctx).Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("Failed to publish conversation event")
	}
}
