// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/models"
	syncpkg "github.com/tomtom215/smsarchive/internal/sync"
)

// ListConversations returns conversations matching the query filters.
//
//	GET /api/v1/conversations?phone=555&search=invoice&start=2026-01-01&end=2026-01-31&page=1&limit=50
//
// A limit of 0 (the default) returns every match.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	f, apiErr := parseConversationFilter(r)
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	page, err := h.sync.GetMessages(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list conversations", err)
		return
	}
	respondSuccess(w, page, start)
}

// ConversationStats returns archive-wide message counts.
func (h *Handler) ConversationStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	stats, err := h.sync.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to compute stats", err)
		return
	}
	respondSuccess(w, stats, start)
}

type conversationRequest struct {
	Phone string `validate:"required,counterparty"`
}

// GetConversation returns one conversation with all of its messages.
//
//	GET /api/v1/conversations/{phone}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	phone, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil {
		respondValidation(w, paramError("phone", "is not a valid path segment"))
		return
	}
	req := conversationRequest{Phone: phone}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	conv, err := h.sync.GetConversation(r.Context(), req.Phone)
	switch {
	case errors.Is(err, syncpkg.ErrConversationNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No conversation with "+logging.MaskPhone(phone), nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load conversation", err)
		return
	}
	respondSuccess(w, conv, start)
}

type retentionRequest struct {
	DaysToKeep int `validate:"min=1,max=36500"`
}

// DeleteOldMessages applies retention.
//
//	DELETE /api/v1/conversations?days_to_keep=365
func (h *Handler) DeleteOldMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if strings.TrimSpace(r.URL.Query().Get("days_to_keep")) == "" {
		respondValidation(w, paramError("days_to_keep", "is required"))
		return
	}
	days, perr := parseIntParam(r, "days_to_keep", 0)
	if perr != nil {
		respondValidation(w, perr)
		return
	}
	req := retentionRequest{DaysToKeep: days}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	removed, err := h.sync.DeleteOldMessages(r.Context(), req.DaysToKeep)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete old messages", err)
		return
	}
	respondSuccess(w, map[string]int{
		"removed":    removed,
		"daysToKeep": req.DaysToKeep,
	}, start)
}

func parseConversationFilter(r *http.Request) (models.ConversationFilter, *models.APIError) {
	q := r.URL.Query()
	f := models.ConversationFilter{
		Phone:  strings.TrimSpace(q.Get("phone")),
		Search: strings.TrimSpace(q.Get("search")),
	}

	var apiErr *models.APIError
	if f.Page, apiErr = parseIntParam(r, "page", 1); apiErr != nil {
		return f, apiErr
	}
	if f.Limit, apiErr = parseIntParam(r, "limit", 0); apiErr != nil {
		return f, apiErr
	}
	if f.StartDate, apiErr = parseTimeParam(r, "start", false); apiErr != nil {
		return f, apiErr
	}
	if f.EndDate, apiErr = parseTimeParam(r, "end", true); apiErr != nil {
		return f, apiErr
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, paramError("start", "must not be after end")
	}

	if apiErr := validateRequest(&f); apiErr != nil {
		return f, apiErr
	}
	return f, nil
}
