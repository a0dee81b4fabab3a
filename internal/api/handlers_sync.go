// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/models"
	syncpkg "github.com/tomtom215/smsarchive/internal/sync"
)

type syncRequest struct {
	// Days of 0 uses the configured window.
	Days int `validate:"min=0,max=3650"`
}

// TriggerSync runs a sync and returns its result.
//
// The run is detached from the request context so a client disconnect does
// not abort it half way; the correlation ID still follows the request.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	days, perr := parseIntParam(r, "days", 0)
	if perr != nil {
		respondValidation(w, perr)
		return
	}
	req := syncRequest{Days: days}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	// A run can outlast the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Could not lift write deadline for sync request")
	}

	res := h.sync.SyncMessages(context.WithoutCancel(r.Context()), req.Days)
	switch {
	case res.Success:
		respondSuccess(w, res, start)
	case res.Error == syncpkg.ErrSyncInProgress.Error():
		respondSyncFailure(w, http.StatusConflict, "SYNC_IN_PROGRESS", res)
	default:
		respondSyncFailure(w, http.StatusBadGateway, "SYNC_FAILED", res)
	}
}

// LastSync returns the most recent sync result.
func (h *Handler) LastSync(w http.ResponseWriter, r *http.Request) {
	res, ok := h.sync.LastResult()
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No sync has completed yet", nil)
		return
	}
	respondSuccess(w, res, time.Now())
}

// respondSyncFailure returns the failed result alongside the error so
// callers still see the partial counters.
func respondSyncFailure(w http.ResponseWriter, status int, code string, res models.SyncResult) {
	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Data:   res,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: res.DurationMS,
		},
		Error: &models.APIError{Code: code, Message: res.Error},
	})
}
