// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Phone string `validate:"omitempty,phone"`
	Peer  string `validate:"omitempty,counterparty"`
	Page  int    `validate:"min=1"`
	Limit int    `validate:"min=0,max=500"`
	Mode  string `validate:"oneof=full incremental"`
}

func TestValidateStruct_Valid(t *testing.T) {
	t.Parallel()

	for _, peer := range []string{"", "72166", "+15551234567"} {
		req := sampleRequest{Phone: "+15551234567", Peer: peer, Page: 1, Limit: 0, Mode: "full"}
		if err := ValidateStruct(&req); err != nil {
			t.Fatalf("peer %q: expected no error, got %v", peer, err)
		}
	}
}

func TestValidateStruct_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     sampleRequest
		field   string
		tag     string
		message string
	}{
		{"bad phone", sampleRequest{Phone: "555-CALL", Page: 1, Mode: "full"}, "Phone", "phone", "Phone must be a phone number"},
		{"short code as phone", sampleRequest{Phone: "72166", Page: 1, Mode: "full"}, "Phone", "phone", "Phone must be a phone number"},
		{"bad counterparty", sampleRequest{Peer: "alice", Page: 1, Mode: "full"}, "Peer", "counterparty", "Peer must be a phone number or short code"},
		{"counterparty too short", sampleRequest{Peer: "12", Page: 1, Mode: "full"}, "Peer", "counterparty", "Peer must be a phone number or short code"},
		{"page zero", sampleRequest{Page: 0, Mode: "full"}, "Page", "min", "Page must be at least 1"},
		{"limit too large", sampleRequest{Page: 1, Limit: 501, Mode: "full"}, "Limit", "max", "Limit must be at most 500"},
		{"bad mode", sampleRequest{Page: 1, Mode: "partial"}, "Mode", "oneof", "Mode must be one of: full incremental"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verr := ValidateStruct(&tt.req)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), verr)
			}
			if errs[0].Field != tt.field || errs[0].Tag != tt.tag {
				t.Errorf("got field=%s tag=%s, want field=%s tag=%s", errs[0].Field, errs[0].Tag, tt.field, tt.tag)
			}
			if !strings.HasPrefix(errs[0].Message, tt.message) {
				t.Errorf("message = %q, want prefix %q", errs[0].Message, tt.message)
			}

			apiErr := verr.ToAPIError()
			if apiErr.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %s, want VALIDATION_ERROR", apiErr.Code)
			}
		})
	}
}

func TestToAPIError_MultipleFields(t *testing.T) {
	t.Parallel()

	verr := ValidateStruct(&sampleRequest{Page: 0, Limit: -1, Mode: "x"})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	apiErr := verr.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("expected 3 field details, got %#v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "; ") {
		t.Errorf("expected joined message, got %q", apiErr.Message)
	}
}
