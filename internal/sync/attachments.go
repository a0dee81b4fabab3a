// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package sync

import (
	"context"
	"mime"
	"sync"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/models"
)

// pendingAttachment points at an attachment inside a message slice.
type pendingAttachment struct {
	messageID models.ProviderID
	att       *models.Attachment
}

// processAttachments uploads every unprocessed attachment of msgs and sets
// its AzureURL. Uploads run concurrently within a batch; batches are
// separated by the configured pause. A failed upload leaves the original
// attachment record untouched.
func (m *Manager) processAttachments(ctx context.Context, phone string, msgs []models.Message) (downloaded, failed int) {
	var pending []pendingAttachment
	for i := range msgs {
		for j := range msgs[i].Attachments {
			a := &msgs[i].Attachments[j]
			if a.Processed() || a.URI == "" {
				continue
			}
			pending = append(pending, pendingAttachment{messageID: msgs[i].ID, att: a})
		}
	}
	if len(pending) == 0 {
		return 0, 0
	}

	log := logging.Ctx(ctx).With().Str("phone", logging.MaskPhone(phone)).Logger()

	token, err := m.source.AccessToken(ctx)
	if err != nil {
		log.Error().Err(err).Int("attachments", len(pending)).Msg("No access token for attachment downloads")
		return 0, len(pending)
	}

	batchSize := max(m.cfg.Attachments.BatchSize, 1)
	for start := 0; start < len(pending); start += batchSize {
		if start > 0 {
			if err := m.sleep(ctx, m.cfg.Attachments.BatchPause); err != nil {
				return downloaded, failed + len(pending) - start
			}
		}

		batch := pending[start:min(start+batchSize, len(pending))]
		ok := make([]bool, len(batch))

		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p := batch[i]
				url, err := m.attachments.DownloadAndUpload(ctx, p.att.URI, attachmentFileName(p), p.att.ContentType, token)
				if err != nil {
					log.Warn().Err(err).
						Str("message_id", string(p.messageID)).
						Str("attachment_id", string(p.att.ID)).
						Msg("Attachment upload failed, keeping provider reference")
					return
				}
				p.att.AzureURL = url
				ok[i] = true
			}(i)
		}
		wg.Wait()

		for _, success := range ok {
			if success {
				downloaded++
			} else {
				failed++
			}
		}
	}

	log.Debug().Int("downloaded", downloaded).Int("failed", failed).Msg("Processed conversation attachments")
	return downloaded, failed
}

// attachmentFileName returns the provider file name, or one derived from
// the message and attachment ids.
func attachmentFileName(p pendingAttachment) string {
	if p.att.FileName != "" {
		return p.att.FileName
	}
	name := string(p.messageID) + "_" + string(p.att.ID)
	if exts, err := mime.ExtensionsByType(p.att.ContentType); err == nil && len(exts) > 0 {
		name += exts[0]
	}
	return name
}
