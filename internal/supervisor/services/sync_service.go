// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/smsarchive/internal/logging"
)

// StartStopManager is the lifecycle of the sync manager.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncService runs the sync manager's schedule under supervision.
type SyncService struct {
	manager StartStopManager
	name    string
}

// NewSyncService wraps manager.
func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{
		manager: manager,
		name:    "sync-manager",
	}
}

// Serve starts the manager, blocks until ctx is done and then stops it.
// Stop waits for an in-flight sync run to return.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("sync manager start failed: %w", err)
	}

	<-ctx.Done()

	stopping := time.Now()
	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("sync manager stop failed: %w", err)
	}
	logging.Info().
		Str("service", s.name).
		Dur("drain", time.Since(stopping)).
		Msg("Sync schedule stopped")
	return ctx.Err()
}

func (s *SyncService) String() string {
	return s.name
}
