// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/smsarchive/internal/logging"
)

// maxErrorBodySize caps how much of an error response body is read (64KB).
const maxErrorBodySize = 64 * 1024

// ErrBodyTooLarge is returned when a response exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("provider response body exceeds size limit")

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Endpoint, e.StatusCode, logging.TruncateBody(e.Body, 512))
}

// IsRateLimit reports whether the provider throttled the request.
func (e *StatusError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimit classifies err as a provider rate-limit failure: an HTTP 429
// StatusError, or any error whose text carries "Too Many Requests" or "429".
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.IsRateLimit()
	}
	msg := err.Error()
	return strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "429")
}

// readBodyForError reads up to maxErrorBodySize bytes for inclusion in errors.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return fmt.Sprintf("[failed to read body: %v]", err)
	}
	return string(body)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
