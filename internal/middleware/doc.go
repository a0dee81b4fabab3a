// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

/*
Package middleware provides HTTP middleware for the admin API.

Key Components:

  - RequestID: request tracking for log correlation
  - PrometheusMetrics: HTTP request/response instrumentation

Both are plain func(http.Handler) http.Handler so they can be passed to
chi's r.Use directly:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

RequestID honours an X-Request-ID header set by an upstream proxy and
otherwise generates a UUID. The ID is echoed in the response header and
stored in the request context through the logging package, so
logging.Ctx(r.Context()) tags every line with request_id and
correlation_id. A sync started from the API therefore reports the request's
correlation ID in its SyncResult.

PrometheusMetrics labels requests with the chi route pattern rather than
the raw path, which keeps label cardinality bounded.
*/
package middleware
