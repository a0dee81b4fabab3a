// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/models"
	syncpkg "github.com/tomtom215/smsarchive/internal/sync"
)

type mockSyncService struct {
	mu         sync.Mutex
	result     models.SyncResult
	last       *models.SyncResult
	daysBack   []int
	filter     models.ConversationFilter
	page       *models.ConversationPage
	stats      *models.MessageStats
	removed    int
	convs      map[string]*models.Conversation
	gotPhone   string
	daysToKeep int
	err        error
	// ctxErr records whether the context handed to SyncMessages was already done.
	ctxErr error
}

func (m *mockSyncService) SyncMessages(ctx context.Context, daysBack int) models.SyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daysBack = append(m.daysBack, daysBack)
	m.ctxErr = ctx.Err()
	return m.result
}

func (m *mockSyncService) LastResult() (*models.SyncResult, bool) {
	return m.last, m.last != nil
}

func (m *mockSyncService) GetMessages(_ context.Context, f models.ConversationFilter) (*models.ConversationPage, error) {
	m.filter = f
	return m.page, m.err
}

func (m *mockSyncService) GetConversation(_ context.Context, phone string) (*models.Conversation, error) {
	m.gotPhone = phone
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.convs[phone]
	if !ok {
		return nil, fmt.Errorf("get conversation: %w", syncpkg.ErrConversationNotFound)
	}
	return c, nil
}

func (m *mockSyncService) GetStats(context.Context) (*models.MessageStats, error) {
	return m.stats, m.err
}

func (m *mockSyncService) DeleteOldMessages(_ context.Context, daysToKeep int) (int, error) {
	m.daysToKeep = daysToKeep
	return m.removed, m.err
}

type mockPinger struct{ err error }

func (p mockPinger) Ping(context.Context) error { return p.err }

type mockCircuit string

func (c mockCircuit) BreakerState() string { return string(c) }

func newTestServer(t *testing.T, svc *mockSyncService, db Pinger) http.Handler {
	t.Helper()
	h := NewHandler(svc, db, mockCircuit("closed"))
	mw := NewChiMiddleware(NewChiMiddlewareConfig(config.SecurityConfig{}))
	return NewRouter(h, mw).SetupChi()
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, env
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		result     models.SyncResult
		wantStatus int
		wantCode   string
		wantDays   []int
	}{
		{
			name:       "success with default window",
			target:     "/api/v1/sync",
			result:     models.SyncResult{Success: true, Synced: 7, ConversationsUpdated: 2},
			wantStatus: http.StatusOK,
			wantDays:   []int{0},
		},
		{
			name:       "explicit days",
			target:     "/api/v1/sync?days=14",
			result:     models.SyncResult{Success: true},
			wantStatus: http.StatusOK,
			wantDays:   []int{14},
		},
		{
			name:       "non-integer days",
			target:     "/api/v1/sync?days=two",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "negative days",
			target:     "/api/v1/sync?days=-1",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "already running",
			target:     "/api/v1/sync",
			result:     models.SyncResult{Error: syncpkg.ErrSyncInProgress.Error()},
			wantStatus: http.StatusConflict,
			wantCode:   "SYNC_IN_PROGRESS",
			wantDays:   []int{0},
		},
		{
			name:       "auth failure",
			target:     "/api/v1/sync",
			result:     models.SyncResult{Error: "authentication failed: status 400"},
			wantStatus: http.StatusBadGateway,
			wantCode:   "SYNC_FAILED",
			wantDays:   []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockSyncService{result: tt.result}
			rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodPost, tt.target)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" && (env.Error == nil || env.Error.Code != tt.wantCode) {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
			if len(svc.daysBack) != len(tt.wantDays) || (len(tt.wantDays) > 0 && svc.daysBack[0] != tt.wantDays[0]) {
				t.Errorf("SyncMessages days = %v, want %v", svc.daysBack, tt.wantDays)
			}
		})
	}
}

func TestTriggerSync_ReturnsResultBody(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{result: models.SyncResult{Success: true, Synced: 7, ConversationsUpdated: 2, AttachmentsDownloaded: 1}}
	_, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodPost, "/api/v1/sync")

	var res models.SyncResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Synced != 7 || res.ConversationsUpdated != 2 || res.AttachmentsDownloaded != 1 {
		t.Errorf("result = %+v", res)
	}
	if env.Status != "success" {
		t.Errorf("status = %q", env.Status)
	}
}

func TestTriggerSync_DetachedFromClientCancel(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{result: models.SyncResult{Success: true}}
	srv := newTestServer(t, svc, mockPinger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil).WithContext(ctx)
	srv.ServeHTTP(httptest.NewRecorder(), req)

	if svc.ctxErr != nil {
		t.Errorf("sync context was cancelled with the request: %v", svc.ctxErr)
	}
}

func TestLastSync(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{}
	srv := newTestServer(t, svc, mockPinger{})

	if rec, _ := do(t, srv, http.MethodGet, "/api/v1/sync/last"); rec.Code != http.StatusNotFound {
		t.Errorf("status before any run = %d, want 404", rec.Code)
	}

	svc.last = &models.SyncResult{Success: true, Synced: 3}
	rec, env := do(t, srv, http.MethodGet, "/api/v1/sync/last")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(env.Data), `"synced":3`) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestListConversations_Filters(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{page: &models.ConversationPage{Page: 2, Limit: 10}}
	srv := newTestServer(t, svc, mockPinger{})

	rec, _ := do(t, srv, http.MethodGet, "/api/v1/conversations?phone=%2B1555&search=invoice&start=2026-01-01&end=2026-01-31&page=2&limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	f := svc.filter
	if f.Phone != "+1555" || f.Search != "invoice" || f.Page != 2 || f.Limit != 10 {
		t.Errorf("filter = %+v", f)
	}
	if f.StartDate == nil || !f.StartDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", f.StartDate)
	}
	wantEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if f.EndDate == nil || !f.EndDate.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", f.EndDate, wantEnd)
	}
}

func TestListConversations_Defaults(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{page: &models.ConversationPage{}}
	rec, _ := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/conversations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.filter.Page != 1 || svc.filter.Limit != 0 {
		t.Errorf("defaults = page %d limit %d, want 1 and 0", svc.filter.Page, svc.filter.Limit)
	}
}

func TestListConversations_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{"limit too large", "limit=501"},
		{"page zero", "page=0"},
		{"bad date", "start=yesterday"},
		{"start after end", "start=2026-02-01&end=2026-01-01"},
		{"non-integer page", "page=one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockSyncService{}
			rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/conversations?"+tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v", env.Error)
			}
		})
	}
}

func TestListConversations_StoreError(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{err: errors.New("server selection timeout")}
	rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/conversations")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(env.Error.Message, "server selection") {
		t.Error("internal error detail leaked to client")
	}
}

func TestConversationStats(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{stats: &models.MessageStats{Conversations: 2, TotalMessages: 7}}
	rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/conversations/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(env.Data), `"totalMessages":7`) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestGetConversation(t *testing.T) {
	t.Parallel()

	conv := &models.Conversation{PhoneNumber: "+15550001111", MessageCount: 4}
	shortCode := &models.Conversation{PhoneNumber: "72166", MessageCount: 4}

	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"found", "/api/v1/conversations/+15550001111", nil, http.StatusOK, ""},
		{"escaped plus", "/api/v1/conversations/%2B15550001111", nil, http.StatusOK, ""},
		{"short code", "/api/v1/conversations/72166", nil, http.StatusOK, ""},
		{"unknown phone", "/api/v1/conversations/+15550009999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown short code", "/api/v1/conversations/40404", nil, http.StatusNotFound, "NOT_FOUND"},
		{"not a phone", "/api/v1/conversations/alice", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"store down", "/api/v1/conversations/+15550001111", errors.New("server selection timeout"), http.StatusInternalServerError, "DATABASE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockSyncService{
				convs: map[string]*models.Conversation{conv.PhoneNumber: conv, shortCode.PhoneNumber: shortCode},
				err:   tt.err,
			}
			rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, tt.target)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
				}
				return
			}
			if !strings.Contains(string(env.Data), `"messageCount":4`) {
				t.Errorf("data = %s", env.Data)
			}
		})
	}
}

func TestDeleteOldMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDays   int
	}{
		{"valid", "?days_to_keep=90", http.StatusOK, 90},
		{"missing", "", http.StatusBadRequest, 0},
		{"zero", "?days_to_keep=0", http.StatusBadRequest, 0},
		{"not a number", "?days_to_keep=ninety", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockSyncService{removed: 12}
			rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodDelete, "/api/v1/conversations"+tt.query)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if svc.daysToKeep != tt.wantDays {
				t.Errorf("daysToKeep = %d, want %d", svc.daysToKeep, tt.wantDays)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(string(env.Data), `"removed":12`) {
				t.Errorf("data = %s", env.Data)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	svc := &mockSyncService{last: &models.SyncResult{Success: true, StartedAt: time.Now()}}

	rec, _ := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/health/live")
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}

	rec, env := do(t, newTestServer(t, svc, mockPinger{}), http.MethodGet, "/api/v1/health/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
	if !strings.Contains(string(env.Data), `"last_sync_success":true`) {
		t.Errorf("ready data = %s", env.Data)
	}

	rec, _ = do(t, newTestServer(t, svc, mockPinger{err: errors.New("no reachable servers")}), http.MethodGet, "/api/v1/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with store down = %d, want 503", rec.Code)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mockSyncService{}, mockPinger{})

	rec, env := do(t, srv, http.MethodGet, "/api/v1/nope")
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown route = %d %+v", rec.Code, env.Error)
	}

	rec, _ = do(t, srv, http.MethodPut, "/api/v1/conversations")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT conversations = %d, want 405", rec.Code)
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mockSyncService{stats: &models.MessageStats{}}, mockPinger{})
	rec, _ := do(t, srv, http.MethodGet, "/api/v1/conversations/stats")

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRateLimitSync(t *testing.T) {
	t.Parallel()

	h := NewHandler(&mockSyncService{result: models.SyncResult{Success: true}}, mockPinger{}, nil)
	mw := NewChiMiddleware(NewChiMiddlewareConfig(config.SecurityConfig{RateLimitReqs: 100, RateLimitWindow: time.Minute}))
	srv := NewRouter(h, mw).SetupChi()

	var last int
	for i := 0; i < RateLimitSync.Requests+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("request %d status = %d, want 429", RateLimitSync.Requests+1, last)
	}
}
