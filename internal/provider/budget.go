// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package provider

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

// CallBudget enforces a fixed-window cap on outbound provider calls
// (50 calls per 60 seconds by default). When the cap is reached the caller
// sleeps until the window ends; the next window starts with a fresh count.
type CallBudget struct {
	limit  int
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	used        int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCallBudget creates a budget of limit calls per window.
func NewCallBudget(limit int, window time.Duration) *CallBudget {
	return &CallBudget{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait reserves one call, blocking until the budget allows it.
func (b *CallBudget) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
			b.windowStart = now
			b.used = 0
		}
		if b.used < b.limit {
			b.used++
			b.mu.Unlock()
			return nil
		}
		wait := b.window - now.Sub(b.windowStart)
		b.mu.Unlock()

		metrics.ProviderThrottleWaits.WithLabelValues("budget").Inc()
		logging.Ctx(ctx).Warn().Dur("wait", wait).Int("limit", b.limit).Msg("Provider call budget exhausted, waiting for next window")
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Used returns the number of calls made in the current window.
func (b *CallBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
