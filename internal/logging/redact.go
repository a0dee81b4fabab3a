// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package logging

import "strings"

// MaskPhone keeps the last four digits of a phone number for log output.
//
//	MaskPhone("+15551234567") // "***4567"
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return "***" + phone[len(phone)-4:]
}

// RedactToken shows only the first 8 characters of a bearer token or assertion.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:8] + "...[REDACTED]"
}

// TruncateBody shortens an upstream response body before it is logged or
// embedded in an error.
func TruncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "...(truncated)"
}
