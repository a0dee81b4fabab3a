// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package sync runs the SMS synchronization pipeline.
//
// # Overview
//
// A sync run pulls every SMS from the provider's message store for a recent
// window of days, copies MMS attachments into blob storage and merges the
// messages into one conversation document per counterparty phone number.
//
// # Pipeline
//
//  1. Single-instance guard: in-process mutex plus a TTL run lock in the state store
//  2. Schema check: indexes are rebuilt only when the recorded schema version is behind
//  3. Access token from the provider
//  4. Paginated fetch (a truncated listing still syncs what was fetched and is flagged partial)
//  5. Dedupe by message id, then group by counterparty in sorted order
//  6. Per conversation: skip messages already stored, upload attachments of
//     new messages in small concurrent batches, merge
//
// A failure inside one conversation is logged and its messages are counted
// as skipped; the run continues with the next conversation. Failures before
// per-conversation work end the run with Success=false.
//
// # Scheduling
//
// Start launches a periodic loop (sync.interval) that optionally runs once at
// startup and applies message retention after each run. TriggerSync and the
// admin API run the same pipeline on demand; overlapping requests are
// rejected rather than queued.
//
// # Thread Safety
//
//   - syncMu: at most one run per process (TryLock, never waits)
//   - mu: protects lastResult, running and the completion callback
//   - wg: tracks the scheduler goroutine for Stop
package sync
