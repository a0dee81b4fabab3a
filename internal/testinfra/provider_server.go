// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

//go:build integration

package testinfra

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// MockProvider is an in-process stand-in for the telephony provider API.
// It serves the token endpoint, a paged message store and attachment content.
type MockProvider struct {
	Server *httptest.Server

	mu       sync.Mutex
	records  []map[string]any
	content  map[string][]byte
	requests map[string]int
}

// NewMockProvider starts a mock provider that is closed with the test.
func NewMockProvider(t *testing.T) *MockProvider {
	t.Helper()

	mp := &MockProvider{
		content:  make(map[string][]byte),
		requests: make(map[string]int),
	}
	mp.Server = httptest.NewServer(http.HandlerFunc(mp.serve))
	t.Cleanup(mp.Server.Close)
	return mp
}

// URL returns the base URL of the mock provider.
func (mp *MockProvider) URL() string {
	return mp.Server.URL
}

// AddMessage appends one raw message record to the message store.
func (mp *MockProvider) AddMessage(record map[string]any) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.records = append(mp.records, record)
}

// AddContent registers attachment bytes served at {URL}/content/{id}/content
// and returns the attachment reference URI.
func (mp *MockProvider) AddContent(id string, data []byte) string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.content[id] = data
	return fmt.Sprintf("%s/content/%s", mp.Server.URL, id)
}

// Requests returns how many requests hit the given endpoint
// ("token", "message-store" or "content").
func (mp *MockProvider) Requests(endpoint string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.requests[endpoint]
}

func (mp *MockProvider) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/restapi/oauth/token":
		mp.count("token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"mock-token","token_type":"bearer","expires_in":3600}`))

	case strings.HasSuffix(r.URL.Path, "/message-store"):
		mp.count("message-store")
		mp.serveMessages(w, r)

	case strings.HasPrefix(r.URL.Path, "/content/") && strings.HasSuffix(r.URL.Path, "/content"):
		mp.count("content")
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/content/"), "/content")
		mp.mu.Lock()
		data, ok := mp.content[id]
		mp.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errorCode":"CMN-102","message":"Resource not found"}`))
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		_, _ = w.Write(data)

	default:
		http.NotFound(w, r)
	}
}

func (mp *MockProvider) serveMessages(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer mock-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	page = max(page, 1)
	if perPage <= 0 {
		perPage = 100
	}

	mp.mu.Lock()
	total := len(mp.records)
	from := min((page-1)*perPage, total)
	to := min(page*perPage, total)
	records := append([]map[string]any{}, mp.records[from:to]...)
	mp.mu.Unlock()

	body := map[string]any{
		"records": records,
		"paging": map[string]int{
			"page":       page,
			"perPage":    perPage,
			"totalPages": max((total+perPage-1)/perPage, 1),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)

	_ = r.Body.Close()
}

func (mp *MockProvider) count(endpoint string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.requests[endpoint]++
}
