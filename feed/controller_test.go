// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
	"github.com/jobfeed-foundation/jobfeed/lib/testutil"
)

type controllerFixture struct {
	controller *Controller
	remote     *fakeRemote
	presenter  *fakePresenter
	clock      *clock.FakeClock
	store      *Store
	membership *Membership
}

func newControllerFixture(t *testing.T, rules map[string]LimitRule) *controllerFixture {
	t.Helper()
	clk := clock.Fake(epochTest)
	logger := slog.Default()
	remote := newFakeRemote()
	presenter := newFakePresenter()
	store := NewStore(context.Background(), logger)
	t.Cleanup(store.Close)
	membership := NewMembership()
	limiter := NewLimiter(LimiterConfig{Rules: rules, Clock: clk, Logger: logger})

	controller, err := NewController(ControllerConfig{
		Remote:      remote,
		Store:       store,
		Membership:  membership,
		Limiter:     limiter,
		Presenter:   presenter,
		APIQueue:    NewQueue("api", 2, clk, logger),
		SearchQueue: NewQueue("search", 1, clk, logger),
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(controller.Close)

	return &controllerFixture{
		controller: controller,
		remote:     remote,
		presenter:  presenter,
		clock:      clk,
		store:      store,
		membership: membership,
	}
}

// waitIdle blocks until the bucket's busy flag clears, so a follow-up
// trigger is not dropped by the single-flight guard.
func (f *controllerFixture) waitIdle(t *testing.T, bucket Bucket) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !f.store.BucketState(bucket).Busy {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("bucket %s never went idle", bucket)
}

func TestControllerPaginationScenario(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 25)

	f.controller.ActivateBucket(BucketMain)
	page := testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "first page")
	if len(page) != 10 {
		t.Fatalf("expected 10 records, got %d", len(page))
	}
	f.waitIdle(t, BucketMain)
	if state := f.store.BucketState(BucketMain); state.Offset != 10 || state.Total != 25 {
		t.Fatalf("after first page: %+v", state)
	}

	f.controller.LoadMore(BucketMain)
	page = testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "second page")
	if len(page) != 10 {
		t.Fatalf("expected 10 records, got %d", len(page))
	}
	f.waitIdle(t, BucketMain)
	if state := f.store.BucketState(BucketMain); state.Offset != 20 {
		t.Fatalf("after second page: %+v", state)
	}

	f.controller.LoadMore(BucketMain)
	page = testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "final page")
	if len(page) != 5 {
		t.Fatalf("expected 5 records, got %d", len(page))
	}
	f.waitIdle(t, BucketMain)
	if state := f.store.BucketState(BucketMain); state.Offset != 25 {
		t.Fatalf("after final page: %+v", state)
	}

	// The last page has been reached: another trigger must not fetch.
	f.controller.LoadMore(BucketMain)
	f.waitIdle(t, BucketMain)
	if got := f.remote.queries(); got != 3 {
		t.Fatalf("expected exactly 3 fetches, got %d", got)
	}
}

func TestControllerActivationSkipsLoadedBucket(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 5)
	f.remote.seed(BucketMaybe, 5)

	f.controller.ActivateBucket(BucketMain)
	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "main page")
	f.waitIdle(t, BucketMain)

	f.controller.ActivateBucket(BucketMaybe)
	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "maybe page")
	f.waitIdle(t, BucketMaybe)

	// Switching back without a query change hits the cache.
	f.controller.ActivateBucket(BucketMain)
	f.waitIdle(t, BucketMain)
	if got := f.remote.queries(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
	if f.store.Active() != BucketMain {
		t.Errorf("active bucket not switched back")
	}
}

func TestControllerDropsTriggerWhileBusy(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 25)
	f.remote.queryStarted = make(chan struct{}, 4)
	f.remote.queryRelease = make(chan struct{})

	f.controller.ActivateBucket(BucketMain)
	testutil.RequireReceive(t, f.remote.queryStarted, 5*time.Second, "fetch start")

	// A second trigger while the bucket is busy is dropped, not queued.
	f.controller.LoadMore(BucketMain)
	close(f.remote.queryRelease)

	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "page")
	f.waitIdle(t, BucketMain)
	if got := f.remote.queries(); got != 1 {
		t.Fatalf("busy bucket should drop the trigger, got %d fetches", got)
	}
}

func TestControllerSearchDebounce(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 5)
	f.controller.ActivateBucket(BucketMain)
	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "initial page")
	f.waitIdle(t, BucketMain)

	// Only the last text of a typing burst reaches the network.
	f.controller.SetSearch("r")
	f.controller.SetSearch("re")
	f.controller.SetSearch("record")
	f.clock.Advance(DefaultSearchDebounce)

	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "search results")
	f.waitIdle(t, BucketMain)
	if f.store.Query() != "record" {
		t.Errorf("expected query %q, got %q", "record", f.store.Query())
	}
	if got := f.remote.queries(); got != 2 {
		t.Fatalf("expected 1 initial + 1 search fetch, got %d", got)
	}
}

func TestControllerQuerySwitchRace(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 15)
	f.remote.queryStarted = make(chan struct{}, 4)
	f.remote.queryRelease = make(chan struct{})

	f.controller.SetSearch("alpha")
	f.clock.Advance(DefaultSearchDebounce)
	testutil.RequireReceive(t, f.remote.queryStarted, 5*time.Second, "first search in flight")

	// The second search aborts the first mid-flight.
	f.controller.SetSearch("record")
	f.clock.Advance(DefaultSearchDebounce)
	close(f.remote.queryRelease)

	page := testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "winning search results")
	if len(page) != 10 {
		t.Fatalf("expected 10 records for the winning query, got %d", len(page))
	}
	f.waitIdle(t, BucketMain)

	if f.store.Query() != "record" {
		t.Errorf("expected query %q, got %q", "record", f.store.Query())
	}
	if !f.store.IsLoadedForQuery(BucketMain) {
		t.Error("bucket should be loaded for the winning query")
	}
	select {
	case p := <-f.presenter.RenderedPage:
		t.Fatalf("stale query rendered %d records", len(p))
	default:
	}
}

func TestControllerFetchSkipsLiveArrivals(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 10)

	// A record that already arrived over the live channel is marked
	// in every bucket; a paged fetch must not materialize it twice.
	f.membership.AddLive("main-3")

	f.controller.ActivateBucket(BucketMain)
	page := testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "page")
	if len(page) != 9 {
		t.Fatalf("expected 9 records after dedup, got %d", len(page))
	}
	for _, record := range page {
		if record.ID == "main-3" {
			t.Fatal("live record rendered twice")
		}
	}
}

func TestControllerTransientErrorRetries(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.seed(BucketMain, 5)
	f.remote.queryErr = &APIError{Code: ErrCodeInternal, Message: "overloaded", StatusCode: 500}

	f.controller.ActivateBucket(BucketMain)
	shown := testutil.RequireReceive(t, f.presenter.Errors, 5*time.Second, "transient error")
	if shown.Bucket != BucketMain {
		t.Errorf("error scoped to wrong bucket: %+v", shown)
	}
	if shown.Retry == nil {
		t.Fatal("transient failure must carry a retry affordance")
	}
	f.waitIdle(t, BucketMain)

	f.remote.mu.Lock()
	f.remote.queryErr = nil
	f.remote.mu.Unlock()

	shown.Retry()
	page := testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "page after retry")
	if len(page) != 5 {
		t.Fatalf("expected 5 records after retry, got %d", len(page))
	}
}

func TestControllerPermanentErrorHasNoRetry(t *testing.T) {
	f := newControllerFixture(t, nil)
	f.remote.queryErr = &APIError{Code: ErrCodeNotFound, Message: "gone", StatusCode: 404}

	f.controller.ActivateBucket(BucketMain)
	shown := testutil.RequireReceive(t, f.presenter.Errors, 5*time.Second, "permanent error")
	if shown.Retry != nil {
		t.Fatal("permanent failure must not carry a retry affordance")
	}
}

func TestControllerLimiterRejection(t *testing.T) {
	f := newControllerFixture(t, map[string]LimitRule{
		"fetch": {MaxRequests: 1, Window: time.Minute},
	})
	f.remote.seed(BucketMain, 5)
	f.remote.seed(BucketMaybe, 5)

	f.controller.ActivateBucket(BucketMain)
	testutil.RequireReceive(t, f.presenter.RenderedPage, 5*time.Second, "first fetch")
	f.waitIdle(t, BucketMain)

	f.controller.ActivateBucket(BucketMaybe)
	testutil.RequireReceive(t, f.presenter.Notices, 5*time.Second, "limiter rejection")
	f.waitIdle(t, BucketMaybe)
	if got := f.remote.queries(); got != 1 {
		t.Fatalf("rejected fetch must not reach the remote, got %d", got)
	}
	if f.store.BucketState(BucketMaybe).Busy {
		t.Error("busy flag leaked on the governance path")
	}
}

func TestControllerEmptyBucket(t *testing.T) {
	f := newControllerFixture(t, nil)

	f.controller.ActivateBucket(BucketOther)
	testutil.RequireReceive(t, f.presenter.Empty, 5*time.Second, "empty state")
	f.waitIdle(t, BucketOther)
	if f.presenter.Count(BucketOther) != 0 {
		t.Errorf("expected zero count, got %d", f.presenter.Count(BucketOther))
	}
}
