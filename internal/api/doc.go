// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

/*
Package api provides the admin HTTP API for SMS Archive.

The API is a thin layer over the sync manager. It triggers runs, reports the
last result, lists archived conversations and applies retention.

Routes:

	GET    /api/v1/health/live           process is up
	GET    /api/v1/health/ready          conversation store reachable
	POST   /api/v1/sync?days=N           run a sync now and return its SyncResult
	GET    /api/v1/sync/last             most recent SyncResult
	GET    /api/v1/conversations         list conversations (phone, search, start, end, page, limit)
	GET    /api/v1/conversations/stats   archive-wide message counts
	DELETE /api/v1/conversations?days_to_keep=N
	GET    /metrics                      Prometheus exposition

Every JSON response uses the models.APIResponse envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "...", "query_time_ms": 12}
	}

Errors carry a machine-readable code (VALIDATION_ERROR, SYNC_IN_PROGRESS,
SYNC_FAILED, DATABASE_ERROR) and a message.

Middleware:

Requests pass through request ID tagging, real IP extraction, panic
recovery and CORS (go-chi/cors). API routes are rate limited per client IP
with go-chi/httprate; the sync trigger has its own, stricter limit.
*/
package api
