// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/smsarchive/internal/models"
)

// readyTimeout bounds the store ping in the readiness probe.
const readyTimeout = 2 * time.Second

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]interface{}{
		"status":  "alive",
		"version": Version,
	}, time.Now())
}

// HealthReady reports whether the conversation store is reachable. An open
// provider circuit is reported but does not fail readiness; syncs recover
// once the breaker closes.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	dbConnected := h.db != nil && h.db.Ping(ctx) == nil

	health := models.HealthStatus{
		Status:            "healthy",
		Version:           Version,
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if h.provider != nil {
		health.ProviderCircuit = h.provider.BreakerState()
		if health.ProviderCircuit == "open" {
			health.Status = "degraded"
		}
	}
	if last, ok := h.sync.LastResult(); ok {
		started := last.StartedAt
		success := last.Success
		health.LastSyncTime = &started
		health.LastSyncSuccess = &success
	}

	if !dbConnected {
		health.Status = "unhealthy"
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     health,
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    &models.APIError{Code: "DATABASE_ERROR", Message: "Conversation store is unreachable"},
		})
		return
	}

	respondSuccess(w, health, start)
}
