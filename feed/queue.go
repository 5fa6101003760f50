// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
)

// QueueMetrics is a point-in-time view of queue activity.
type QueueMetrics struct {
	Total     int
	Completed int
	Failed    int
	Pending   int
	Executing int
	// AverageDuration is an exponentially weighted moving average of
	// task durations. Zero until the first task completes.
	AverageDuration time.Duration
}

// ewmaAlpha weights new samples in the average-duration estimate.
const ewmaAlpha = 0.1

// Queue bounds how many tasks of a kind run concurrently. Admission
// is strictly FIFO: a task enqueued first starts first, even when
// later callers arrive while slots are free. Failure propagates the
// task's original error to the caller; the queue never retries —
// retry policy belongs to the caller.
//
// Queue is safe for concurrent use.
type Queue struct {
	name        string
	concurrency int
	clock       clock.Clock
	logger      *slog.Logger

	mu        sync.Mutex
	pending   []*queueSlot
	executing []*queueSlot
	metrics   QueueMetrics
}

// queueSlot is one admitted caller. Identity of the pointer is what
// removes it from the executing list — concurrent completions can
// finish in any order, so positional removal would corrupt the list.
type queueSlot struct {
	label string
	ready chan struct{}
}

// NewQueue creates a queue running at most concurrency tasks at once.
// The name appears in logs and metrics.
func NewQueue(name string, concurrency int, clk clock.Clock, logger *slog.Logger) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		name:        name,
		concurrency: concurrency,
		clock:       clk,
		logger:      logger,
	}
}

// Do runs task once a slot is free, blocking the calling goroutine
// through admission and execution. Returns the task's error
// unchanged, or the context error if ctx is cancelled while the task
// is still waiting for admission. A task that has started always runs
// to completion; cancellation of a running task is the task's own
// business via ctx.
func (q *Queue) Do(ctx context.Context, label string, task func(context.Context) error) error {
	slot := &queueSlot{label: label, ready: make(chan struct{})}

	q.mu.Lock()
	q.metrics.Total++
	q.pending = append(q.pending, slot)
	q.drainLocked()
	q.mu.Unlock()

	select {
	case <-slot.ready:
	case <-ctx.Done():
		q.abandon(slot)
		return ctx.Err()
	}

	started := q.clock.Now()
	err := task(ctx)
	q.finish(slot, started, err)
	return err
}

// DoResult runs task through the queue and returns its value. It has
// the same admission and cancellation behavior as [Queue.Do]; on a
// pre-admission cancel the zero value of T is returned with the
// context error.
func DoResult[T any](ctx context.Context, q *Queue, label string, task func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, label, func(ctx context.Context) error {
		var taskErr error
		result, taskErr = task(ctx)
		return taskErr
	})
	return result, err
}

// drainLocked admits pending slots while capacity remains. Must be
// called with q.mu held.
func (q *Queue) drainLocked() {
	for len(q.pending) > 0 && len(q.executing) < q.concurrency {
		slot := q.pending[0]
		q.pending = q.pending[1:]
		q.executing = append(q.executing, slot)
		close(slot.ready)
	}
}

// abandon removes a slot whose caller gave up before admission. If
// the slot was admitted concurrently with the cancellation, it is
// released like a completed task so the capacity is not leaked.
func (q *Queue) abandon(slot *queueSlot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, pending := range q.pending {
		if pending == slot {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.metrics.Failed++
			return
		}
	}
	// Already admitted: free the slot without running the task.
	q.removeExecutingLocked(slot)
	q.metrics.Failed++
	q.drainLocked()
}

// finish releases a slot after its task ran and updates metrics.
func (q *Queue) finish(slot *queueSlot, started time.Time, err error) {
	duration := q.clock.Now().Sub(started)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeExecutingLocked(slot)
	if err != nil {
		q.metrics.Failed++
		q.logger.Debug("queue task failed",
			"queue", q.name,
			"label", slot.label,
			"duration", duration,
			"error", err,
		)
	} else {
		q.metrics.Completed++
	}

	if q.metrics.AverageDuration == 0 {
		q.metrics.AverageDuration = duration
	} else {
		average := float64(q.metrics.AverageDuration)
		q.metrics.AverageDuration = time.Duration(average + ewmaAlpha*(float64(duration)-average))
	}

	q.drainLocked()
}

// removeExecutingLocked removes slot from the executing list by
// identity. Must be called with q.mu held.
func (q *Queue) removeExecutingLocked(slot *queueSlot) {
	for i, executing := range q.executing {
		if executing == slot {
			q.executing = append(q.executing[:i], q.executing[i+1:]...)
			return
		}
	}
}

// Metrics returns a snapshot of queue counters.
func (q *Queue) Metrics() QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	metrics := q.metrics
	metrics.Pending = len(q.pending)
	metrics.Executing = len(q.executing)
	return metrics
}
