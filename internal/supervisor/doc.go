// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

/*
Package supervisor runs the long-lived parts of SMS Archive under a suture v4
supervisor tree.

# Overview

Services are grouped into three layers so a crash in one does not take the
others down:

	RootSupervisor ("smsarchive")
	├── DataSupervisor ("data-layer")
	│   ├── EmbeddedNATSService (if NATS_EMBEDDED_SERVER)
	│   └── QueueDrainService (attachment request queue)
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (scheduled sync runs)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (admin API, if HTTP_ENABLED)

A failing service is restarted with suture's backoff. Cancelling the context
passed to Serve stops every layer; services that do not return within the
shutdown timeout are listed by UnstoppedServiceReport.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped with error")
	}

Supervisor events are logged through the zerolog-backed slog handler from
the logging package via sutureslog.
*/
package supervisor
