// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package ratelimit provides a FIFO task queue that runs one task at a time
// and paces task starts to a configured rate.
//
// Before each task the queue waits
//
//	max(minDelay, 1/requestsPerSecond - timeSinceLastStart)
//
// so both the steady rate and a minimum gap between consecutive tasks hold.
//
//	q := ratelimit.New("provider", 2, 500*time.Millisecond)
//	body, err := ratelimit.Do(ctx, q, func(ctx context.Context) ([]byte, error) {
//	    return client.Download(ctx, uri)
//	})
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
)

// ErrQueueCleared is returned to callers whose task was dropped by Clear.
var ErrQueueCleared = errors.New("rate limiter queue cleared before task started")

// Task is a unit of work run by the queue.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
	done chan error
}

// Limiter is a FIFO queue with paced, one-at-a-time execution.
// The zero value is not usable; construct with New.
type Limiter struct {
	name     string
	minDelay time.Duration
	pace     *rate.Limiter

	mu         sync.Mutex
	queue      []*job
	processing bool
}

// New creates a limiter. requestsPerSecond <= 0 disables rate pacing and
// leaves only minDelay.
func New(name string, requestsPerSecond float64, minDelay time.Duration) *Limiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Every(time.Duration(float64(time.Second) / requestsPerSecond))
	}
	if minDelay < 0 {
		minDelay = 0
	}
	return &Limiter{
		name:     name,
		minDelay: minDelay,
		pace:     rate.NewLimiter(limit, 1),
	}
}

// Execute enqueues task and blocks until it has run, returning the task's error.
//
// If ctx is cancelled while the task is still queued, the task is skipped and
// ctx.Err() is returned. If Clear drops the task, ErrQueueCleared is returned.
func (l *Limiter) Execute(ctx context.Context, task Task) error {
	j := &job{ctx: ctx, task: task, done: make(chan error, 1)}

	l.mu.Lock()
	l.queue = append(l.queue, j)
	metrics.QueueLength.WithLabelValues(l.name).Set(float64(len(l.queue)))
	if !l.processing {
		l.processing = true
		go l.process()
	}
	l.mu.Unlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The worker still observes ctx and skips or aborts the task.
		return ctx.Err()
	}
}

// Do runs fn through the limiter and returns its typed result.
func Do[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := l.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Clear drops every task that has not started yet and returns how many were
// dropped. A task that is already waiting out its pacing delay still runs.
func (l *Limiter) Clear() int {
	l.mu.Lock()
	dropped := l.queue
	l.queue = nil
	metrics.QueueLength.WithLabelValues(l.name).Set(0)
	l.mu.Unlock()

	for _, j := range dropped {
		j.done <- ErrQueueCleared
	}
	if len(dropped) > 0 {
		logging.Debug().Str("queue", l.name).Int("dropped", len(dropped)).Msg("Cleared rate limiter queue")
	}
	return len(dropped)
}

// QueueLength returns the number of tasks waiting to start.
func (l *Limiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// process is the single worker. It exits when the queue drains and is
// restarted by the next Execute.
func (l *Limiter) process() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.processing = false
			l.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		metrics.QueueLength.WithLabelValues(l.name).Set(float64(len(l.queue)))
		l.mu.Unlock()

		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}

		now := time.Now()
		delay := l.pace.ReserveN(now.Add(l.minDelay), 1).DelayFrom(now)
		metrics.QueueWait.WithLabelValues(l.name).Observe(delay.Seconds())

		if err := sleep(j.ctx, delay); err != nil {
			j.done <- err
			continue
		}

		j.done <- run(j)
	}
}

func run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate limited task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d == rate.InfDuration {
		return fmt.Errorf("rate limiter cannot schedule task")
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
