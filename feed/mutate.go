// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
)

// DefaultUndoWindow is how long a hidden record can be brought back
// before the status change is committed to the remote store.
const DefaultUndoWindow = 5 * time.Second

// mutationPhase tracks a pending mutation through its state machine.
// A record is in the pending map exactly while a mutation is in
// flight or awaiting its undo window; terminal states are expressed
// by removal from the map.
type mutationPhase int

const (
	// phasePendingUndo: optimistically hidden, undo window running.
	phasePendingUndo mutationPhase = iota
	// phaseCommitting: window elapsed, remote call claimed. Undo
	// arriving now has lost the race and is ignored.
	phaseCommitting
)

type pendingMutation struct {
	bucket Bucket
	record Record
	status Status
	phase  mutationPhase
	timer  *clock.Timer
}

// CoordinatorConfig holds the collaborators for creating a Coordinator.
type CoordinatorConfig struct {
	Remote     Remote
	Store      *Store
	Membership *Membership
	Limiter    *Limiter
	Presenter  Presenter
	// Queue bounds concurrent remote mutation calls.
	Queue *Queue
	// Clock drives the undo window timers. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
	// UndoWindow overrides DefaultUndoWindow when positive.
	UndoWindow time.Duration
}

// Coordinator applies user status changes optimistically: the record
// disappears immediately, an undo affordance is offered for the undo
// window, and only when the window elapses unclaimed is the change
// persisted remotely, exactly once. A failed remote call rolls the
// record back into view.
//
// The per-record lock doubles as the pending-mutation registry: a
// record with an entry in the map cannot start a second mutation, and
// teardown can cancel every outstanding undo timer by walking the map.
type Coordinator struct {
	remote     Remote
	store      *Store
	membership *Membership
	limiter    *Limiter
	presenter  Presenter
	queue      *Queue
	clock      clock.Clock
	logger     *slog.Logger
	undoWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*pendingMutation
	closed  bool
}

// NewCoordinator creates a Coordinator from config. Remote, Store,
// Membership, Limiter, Presenter, and Queue are required.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Remote == nil || config.Store == nil || config.Membership == nil ||
		config.Limiter == nil || config.Presenter == nil || config.Queue == nil {
		return nil, fmt.Errorf("feed: coordinator requires Remote, Store, Membership, Limiter, Presenter, and Queue")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := config.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		remote:     config.Remote,
		store:      config.Store,
		membership: config.Membership,
		limiter:    config.Limiter,
		presenter:  config.Presenter,
		queue:      config.Queue,
		clock:      clk,
		logger:     logger,
		undoWindow: window,
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[string]*pendingMutation),
	}, nil
}

// limiterOperation maps a target status to the limiter's operation
// name: favoriting has its own budget, everything else shares the
// generic status-update budget.
func limiterOperation(status Status) string {
	if status == StatusFavorite {
		return "favorite"
	}
	return "status_update"
}

// RequestStatusChange starts an optimistic status change for record
// in bucket. Guards run in order: the per-record lock (a duplicate
// request is dropped silently), then the limiter (a rejection is
// surfaced as a notice). Once both pass the record is hidden, the
// undo affordance is shown, and the undo window starts.
func (c *Coordinator) RequestStatusChange(bucket Bucket, record Record, status Status) {
	if err := record.Validate(); err != nil {
		c.logger.Warn("rejecting status change for invalid record", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, locked := c.pending[record.ID]; locked {
		c.mu.Unlock()
		c.logger.Debug("status change dropped, mutation already pending",
			"record", record.ID, "status", status)
		return
	}

	decision := c.limiter.CheckLimit(limiterOperation(status))
	if !decision.Allowed {
		c.mu.Unlock()
		c.presenter.ShowNotice(decision.Message)
		return
	}

	pending := &pendingMutation{
		bucket: bucket,
		record: record,
		status: status,
		phase:  phasePendingUndo,
	}
	c.pending[record.ID] = pending
	pending.timer = c.clock.AfterFunc(c.undoWindow, func() {
		c.commit(record.ID)
	})
	c.mu.Unlock()

	c.presenter.RemoveRecord(bucket, record.ID)
	c.presenter.ShowUndoNotice(bucket, record, func() {
		c.undo(record.ID)
	})
}

// undo cancels a pending mutation before its window elapses. If the
// commit has already claimed the record, undo has lost the race and
// does nothing.
func (c *Coordinator) undo(id string) {
	c.mu.Lock()
	pending, ok := c.pending[id]
	if !ok || pending.phase != phasePendingUndo {
		c.mu.Unlock()
		return
	}
	pending.timer.Stop()
	delete(c.pending, id)
	c.mu.Unlock()

	c.presenter.RestoreRecord(pending.bucket, pending.record)
}

// commit runs when the undo window elapses. The phase transition
// under the lock is the single authoritative guard: whichever of
// undo and commit takes it first wins, the loser no-ops.
func (c *Coordinator) commit(id string) {
	c.mu.Lock()
	pending, ok := c.pending[id]
	if !ok || pending.phase != phasePendingUndo || c.closed {
		c.mu.Unlock()
		return
	}
	pending.phase = phaseCommitting
	c.wg.Add(1)
	c.mu.Unlock()

	// The remote call must not run on the timer goroutine: it blocks
	// on the mutation queue.
	go func() {
		defer c.wg.Done()
		defer c.release(id)

		err := c.queue.Do(c.ctx, "set_status "+id, func(ctx context.Context) error {
			return c.remote.SetStatus(ctx, id, pending.status)
		})
		switch {
		case err == nil:
			c.finishCommit(pending)
		case IsCancellation(err):
			// Shutdown or teardown. The optimistic hide is moot.
		default:
			c.logger.Warn("status change failed, rolling back",
				"record", id, "status", pending.status, "error", err)
			c.presenter.RestoreRecord(pending.bucket, pending.record)
			c.presenter.ShowNotice(fmt.Sprintf("Could not update %q: %v", pending.record.Title, err))
		}
	}()
}

// finishCommit applies the local bookkeeping for a successful remote
// commit: the bucket total is decremented in place rather than
// refetched, the membership slot is freed so a refetch can place the
// record under its new classification, and an emptied bucket raises
// the empty state.
func (c *Coordinator) finishCommit(pending *pendingMutation) {
	c.membership.Remove(pending.bucket, pending.record.ID)
	total := c.store.DecrementTotal(pending.bucket)
	c.presenter.UpdateCount(pending.bucket, total)
	if c.store.BucketState(pending.bucket).Offset == 0 {
		c.presenter.ShowEmptyState(pending.bucket)
	}
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// RequestBulkStatusChange applies status to every record in bucket in
// one remote call. confirm gates the operation: it is consulted
// before anything else and a false return drops the request. The
// limiter budget for bulk operations is "bulk_status".
func (c *Coordinator) RequestBulkStatusChange(bucket Bucket, status Status, confirm func() bool) {
	if confirm == nil || !confirm() {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	decision := c.limiter.CheckLimit("bulk_status")
	if !decision.Allowed {
		c.mu.Unlock()
		c.presenter.ShowNotice(decision.Message)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		var updated int
		err := c.queue.Do(c.ctx, "bulk_status "+string(bucket), func(ctx context.Context) error {
			var bulkErr error
			updated, bulkErr = c.remote.SetStatusBulk(ctx, bucket, status)
			return bulkErr
		})
		switch {
		case err == nil:
			c.membership.ResetBucket(bucket)
			c.store.SetCounts(bucket, 0)
			c.presenter.UpdateCount(bucket, 0)
			c.presenter.ShowEmptyState(bucket)
			c.presenter.ShowNotice(fmt.Sprintf("Updated %d records", updated))
		case IsCancellation(err):
		default:
			c.logger.Warn("bulk status change failed",
				"bucket", bucket, "status", status, "error", err)
			c.presenter.ShowNotice(fmt.Sprintf("Could not update %s: %v", bucket, err))
		}
	}()
}

// PendingCount returns how many mutations are locked (awaiting undo
// or committing).
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close cancels every outstanding undo timer, aborts in-flight remote
// calls, and waits for commit goroutines to drain. Mutations still in
// their undo window are abandoned without a remote call.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, pending := range c.pending {
		if pending.phase == phasePendingUndo {
			pending.timer.Stop()
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
