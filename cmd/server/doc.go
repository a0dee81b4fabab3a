// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

/*
Package main is the entry point for the SMS Archive server.

SMS Archive copies SMS/MMS history from a cloud telephony provider into a
document store, one document per counterparty phone number, and mirrors
message attachments into Azure Blob Storage.

# Application Architecture

	RootSupervisor ("smsarchive")
	├── DataSupervisor ("data-layer")
	│   ├── Embedded NATS server (optional)
	│   └── Attachment queue drain
	├── SyncSupervisor ("sync-layer")
	│   └── Sync Manager (scheduled runs, retention)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (admin API)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment variables
 2. State store: BadgerDB holding the run lock, schema version and last result
 3. Conversation store: MongoDB
 4. Provider client and the shared attachment request queue
 5. Attachment store: Azure Blob Storage container
 6. Event publisher: NATS (external, embedded or disabled)
 7. Sync manager, admin API and the supervisor tree

# One-shot Mode

	./smsarchive -sync-once -days 7

runs a single sync, logs the summary and exits non-zero on failure. No
scheduler or HTTP server is started.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains, an
in-flight sync run stops at the next conversation boundary and queued
attachment downloads are dropped.
*/
package main
