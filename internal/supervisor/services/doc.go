// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

/*
Package services adapts SMS Archive components to suture's Serve pattern.

Each wrapper translates a component's own lifecycle into
Serve(ctx context.Context) error:

	SyncService          Start/Stop of the scheduled sync manager
	HTTPServerService    ListenAndServe/Shutdown of the admin API
	EmbeddedNATSService  shutdown of the in-process NATS server
	QueueDrainService    clearing the attachment request queue on shutdown

Return values drive the supervisor: an error restarts the service, ctx.Err()
is a normal shutdown, and suture.ErrDoNotRestart stops supervision for good.
*/
package services
