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

// Defaults for the fetch pipeline.
const (
	DefaultPageSize       = 10
	DefaultSearchDebounce = 300 * time.Millisecond
)

// ControllerConfig holds the collaborators for creating a Controller.
type ControllerConfig struct {
	Remote     Remote
	Store      *Store
	Membership *Membership
	Limiter    *Limiter
	Presenter  Presenter

	// APIQueue bounds general fetches (bucket activation, load-more,
	// refresh).
	APIQueue *Queue
	// SearchQueue bounds search fetches. Its concurrency should be 1
	// so search results resolve in submission order.
	SearchQueue *Queue

	// Clock drives the search debounce timer. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// PageSize overrides DefaultPageSize when positive.
	PageSize int
	// SearchDebounce overrides DefaultSearchDebounce when positive.
	SearchDebounce time.Duration
}

// Controller is the fetch pipeline: bucket activations, load-more
// triggers, and search changes come in; paged, deduplicated, rate-
// governed record batches go out through the presenter.
//
// Per bucket at most one fetch is in flight (the store's busy flag; a
// second trigger is dropped, not queued). A search change cancels any
// in-flight fetch before issuing its own, so a stale response can
// never overwrite fresher state.
type Controller struct {
	remote      Remote
	store       *Store
	membership  *Membership
	limiter     *Limiter
	presenter   Presenter
	apiQueue    *Queue
	searchQueue *Queue
	clock       clock.Clock
	logger      *slog.Logger
	pageSize    int
	debounce    time.Duration

	wg sync.WaitGroup

	mu            sync.Mutex
	pagers        map[Bucket]*Pager
	debounceTimer *clock.Timer
	closed        bool
}

// NewController creates a Controller from config. Remote, Store,
// Membership, Limiter, Presenter, and both queues are required.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Remote == nil || config.Store == nil || config.Membership == nil ||
		config.Limiter == nil || config.Presenter == nil ||
		config.APIQueue == nil || config.SearchQueue == nil {
		return nil, fmt.Errorf("feed: controller requires Remote, Store, Membership, Limiter, Presenter, APIQueue, and SearchQueue")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	debounce := config.SearchDebounce
	if debounce <= 0 {
		debounce = DefaultSearchDebounce
	}

	pagers := make(map[Bucket]*Pager, len(AllBuckets))
	for _, bucket := range AllBuckets {
		pagers[bucket] = NewPager(pageSize)
	}

	return &Controller{
		remote:      config.Remote,
		store:       config.Store,
		membership:  config.Membership,
		limiter:     config.Limiter,
		presenter:   config.Presenter,
		apiQueue:    config.APIQueue,
		searchQueue: config.SearchQueue,
		clock:       clk,
		logger:      logger,
		pageSize:    pageSize,
		debounce:    debounce,
		pagers:      pagers,
	}, nil
}

// ActivateBucket makes bucket the active one and loads its first page
// unless its contents are already current for the active query.
func (c *Controller) ActivateBucket(bucket Bucket) {
	if !bucket.Valid() {
		return
	}
	c.store.SetActive(bucket)
	if c.store.IsLoadedForQuery(bucket) {
		return
	}
	c.resetBucket(bucket)
	c.loadPage(bucket, c.apiQueue, "fetch")
}

// LoadMore fetches the bucket's next page. A no-op while a fetch is
// in flight or once the last page has been reached.
func (c *Controller) LoadMore(bucket Bucket) {
	if !bucket.Valid() {
		return
	}
	c.loadPage(bucket, c.apiQueue, "fetch")
}

// Refresh discards the bucket's contents and reloads its first page.
// This is the manual fallback when the live channel is down, and the
// retry affordance for failed loads.
func (c *Controller) Refresh(bucket Bucket) {
	if !bucket.Valid() {
		return
	}
	c.resetBucket(bucket)
	c.loadPage(bucket, c.apiQueue, "fetch")
}

// SetSearch schedules a search for text after the debounce interval.
// A newer call replaces the scheduled one, so only the final text of
// a typing burst reaches the network.
func (c *Controller) SetSearch(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = c.clock.AfterFunc(c.debounce, func() {
		c.applySearch(text)
	})
}

// applySearch commits a debounced query change: the previous fetch is
// aborted, every bucket's pagination and dedup epoch restart, and the
// active bucket reloads under the new query. Inactive buckets reload
// lazily on their next activation.
//
// Each query epoch gets fresh Pager instances rather than resetting
// the old ones: the aborted fetch still holds its pager and records
// its failure there as it winds down, and that must not leak into the
// new epoch's bookkeeping.
func (c *Controller) applySearch(query string) {
	if query == c.store.Query() {
		return
	}

	c.store.AbortCurrent()
	c.store.SetQuery(query)
	c.mu.Lock()
	for _, bucket := range AllBuckets {
		c.pagers[bucket] = NewPager(c.pageSize)
	}
	c.mu.Unlock()
	c.membership.Reset()
	c.store.Reset()

	// The aborted fetch owns the bucket's busy flag until it winds
	// down; the new query's fetch waits for the release instead of
	// being dropped by the single-flight guard.
	active := c.store.Active()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.awaitIdle(active)
		c.loadPage(active, c.searchQueue, "search")
	}()
}

// awaitIdle blocks until the bucket's busy flag clears. The aborted
// fetch clears it promptly: its context is already cancelled.
func (c *Controller) awaitIdle(bucket Bucket) {
	events, cancel := c.store.Subscribe(EventBusyChanged)
	defer cancel()
	for c.store.BucketState(bucket).Busy {
		if _, ok := <-events; !ok {
			return
		}
	}
}

// pager returns the bucket's pager for the current query epoch.
func (c *Controller) pager(bucket Bucket) *Pager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagers[bucket]
}

// resetBucket restarts one bucket's pagination and dedup epoch.
func (c *Controller) resetBucket(bucket Bucket) {
	c.mu.Lock()
	c.pagers[bucket] = NewPager(c.pageSize)
	c.mu.Unlock()
	c.membership.ResetBucket(bucket)
	c.store.ResetBucket(bucket)
}

// loadPage runs one guarded page fetch for bucket through the given
// queue under the named limiter operation. The busy flag is the
// single-flight guard; the limiter consult happens before any work is
// queued so a rejection costs nothing.
func (c *Controller) loadPage(bucket Bucket, queue *Queue, operation string) {
	if !c.store.BeginFetch(bucket) {
		c.logger.Debug("fetch dropped, bucket busy", "bucket", bucket)
		return
	}

	decision := c.limiter.CheckLimit(operation)
	if !decision.Allowed {
		c.store.EndFetch(bucket)
		c.presenter.ShowNotice(decision.Message)
		return
	}

	ctx := c.store.FetchContext()
	query := c.store.Query()
	pager := c.pager(bucket)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.store.EndFetch(bucket)

		page, err := DoResult(ctx, queue, operation+" "+string(bucket), func(ctx context.Context) (PageResult, error) {
			return pager.LoadPage(ctx, func(ctx context.Context, limit, offset int) (*QueryResult, error) {
				return c.remote.Query(ctx, bucket, limit, offset, query)
			})
		})
		c.finishLoad(bucket, query, page, err)
	}()
}

// finishLoad applies one fetch outcome. Errors route by class:
// cancellation is silent (an expected consequence of query changes),
// transient failures get a retry affordance scoped to the bucket,
// permanent ones an error state. A response for a superseded query is
// discarded.
func (c *Controller) finishLoad(bucket Bucket, query string, page PageResult, err error) {
	if err != nil {
		switch Classify(err) {
		case ClassCancellation:
		case ClassTransient:
			c.logger.Warn("bucket load failed", "bucket", bucket, "error", err)
			c.presenter.ShowError(bucket, fmt.Sprintf("Could not load %s: %v", bucket, err), func() {
				c.Refresh(bucket)
			})
		default:
			c.logger.Error("bucket load failed permanently", "bucket", bucket, "error", err)
			c.presenter.ShowError(bucket, fmt.Sprintf("Could not load %s: %v", bucket, err), nil)
		}
		return
	}
	if page.NoOp {
		return
	}
	if query != c.store.Query() {
		c.logger.Debug("discarding stale page", "bucket", bucket, "query", query)
		return
	}

	fresh := c.membership.Filter(bucket, page.Records)
	c.store.MarkLoaded(bucket, query, len(fresh), page.Total)
	c.presenter.UpdateCount(bucket, page.Total)

	if len(fresh) > 0 {
		c.presenter.RenderRecords(bucket, fresh)
	} else if c.store.BucketState(bucket).Offset == 0 {
		c.presenter.ShowEmptyState(bucket)
	}
}

// Close cancels the pending debounce timer and any in-flight fetches,
// then waits for fetch goroutines to drain. The store itself is owned
// by the caller.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.mu.Unlock()

	c.store.AbortCurrent()
	c.wg.Wait()
}
