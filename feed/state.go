// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"log/slog"
	"sync"
)

// CategoryState is the pagination state of one bucket.
type CategoryState struct {
	// Offset is the number of records materialized so far. It only
	// grows within a query epoch and returns to zero on reset.
	Offset int
	// Total is the server-reported total for the current query.
	Total int
	// Busy is true for the duration of at most one in-flight fetch.
	Busy bool
	// LoadedOnce is true after the first successful load.
	LoadedOnce bool
	// LoadedForQuery is the query text the bucket was last loaded
	// for. Cache validity: the bucket is current only when this
	// matches the store's active query.
	LoadedForQuery string
}

// StateEvent names for Store.Subscribe.
const (
	EventQueryChanged  = "query_changed"
	EventActiveChanged = "active_changed"
	EventBucketUpdated = "bucket_updated"
	EventBucketReset   = "bucket_reset"
	EventBusyChanged   = "busy_changed"
	EventCountsUpdated = "counts_updated"
)

// StateEvent is delivered to subscribers after every mutation.
type StateEvent struct {
	Name   string
	Bucket Bucket
	Query  string
	State  CategoryState
}

// Store owns the application state: the search query, the active
// bucket, and per-bucket CategoryState. It is the single legal
// mutation path — every mutator applies the change under the lock and
// then emits the corresponding event, so the state other components
// observe is never silently stale.
//
// The store also owns the cancellation handle for in-flight fetches:
// AbortCurrent cancels the previous handle and installs a fresh one
// atomically, so a superseded search can never race a newer one to
// completion.
//
// Store is an explicitly constructed service, not a package-level
// singleton. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	query   string
	active  Bucket
	buckets map[Bucket]*CategoryState

	base        context.Context
	fetchCtx    context.Context
	cancelFetch context.CancelFunc

	subscribers map[string][]chan StateEvent
	logger      *slog.Logger
}

// subscriberBuffer is the per-subscriber channel capacity. A slow
// subscriber drops events rather than blocking mutators.
const subscriberBuffer = 16

// NewStore creates a Store. base bounds the lifetime of every fetch
// context the store hands out; cancelling it tears down all in-flight
// work.
func NewStore(base context.Context, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	buckets := make(map[Bucket]*CategoryState, len(AllBuckets))
	for _, bucket := range AllBuckets {
		buckets[bucket] = &CategoryState{}
	}
	fetchCtx, cancel := context.WithCancel(base)
	return &Store{
		active:      BucketMain,
		buckets:     buckets,
		base:        base,
		fetchCtx:    fetchCtx,
		cancelFetch: cancel,
		subscribers: make(map[string][]chan StateEvent),
		logger:      logger,
	}
}

// Subscribe registers for events with the given name. The returned
// cancel function removes the subscription; after it returns no
// further events are delivered.
func (s *Store) Subscribe(event string) (<-chan StateEvent, func()) {
	channel := make(chan StateEvent, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[event] = append(s.subscribers[event], channel)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subscribers := s.subscribers[event]
		for i, subscriber := range subscribers {
			if subscriber == channel {
				s.subscribers[event] = append(subscribers[:i], subscribers[i+1:]...)
				return
			}
		}
	}
	return channel, cancel
}

// emitLocked delivers an event to subscribers. Must be called with
// s.mu held. Delivery is non-blocking: a full subscriber channel
// drops the event and logs, so a stuck consumer cannot wedge the
// engine.
func (s *Store) emitLocked(event StateEvent) {
	for _, subscriber := range s.subscribers[event.Name] {
		select {
		case subscriber <- event:
		default:
			s.logger.Warn("state event dropped, subscriber not draining", "event", event.Name)
		}
	}
}

// Query returns the current search text.
func (s *Store) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Active returns the active bucket.
func (s *Store) Active() Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// BucketState returns a copy of the bucket's state.
func (s *Store) BucketState(bucket Bucket) CategoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.buckets[bucket]
}

// SetQuery updates the search text and emits EventQueryChanged. It
// does not touch bucket state: IsLoadedForQuery goes stale on its own
// because LoadedForQuery no longer matches.
func (s *Store) SetQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.query == query {
		return
	}
	s.query = query
	s.emitLocked(StateEvent{Name: EventQueryChanged, Query: query})
}

// SetActive changes the active bucket and emits EventActiveChanged.
func (s *Store) SetActive(bucket Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == bucket {
		return
	}
	s.active = bucket
	s.emitLocked(StateEvent{Name: EventActiveChanged, Bucket: bucket, Query: s.query})
}

// IsLoadedForQuery reports whether the bucket's contents are current
// for the active query: loaded at least once, for exactly this query
// text. Switching buckets without a query change skips the refetch;
// a query change while the bucket was inactive forces one.
func (s *Store) IsLoadedForQuery(bucket Bucket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	return state.LoadedOnce && state.LoadedForQuery == s.query
}

// BeginFetch atomically claims the bucket's busy flag. Returns false
// when a fetch is already in flight — the caller drops the trigger
// rather than queueing a second fetch.
func (s *Store) BeginFetch(bucket Bucket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	if state.Busy {
		return false
	}
	state.Busy = true
	s.emitLocked(StateEvent{Name: EventBusyChanged, Bucket: bucket, State: *state})
	return true
}

// EndFetch clears the bucket's busy flag. Safe to call on all exit
// paths; clearing an already-clear flag is a no-op.
func (s *Store) EndFetch(bucket Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	if !state.Busy {
		return
	}
	state.Busy = false
	s.emitLocked(StateEvent{Name: EventBusyChanged, Bucket: bucket, State: *state})
}

// MarkLoaded records a successful page load: advances the offset by
// added, stores the server total, and stamps the bucket as loaded
// for the given query.
func (s *Store) MarkLoaded(bucket Bucket, query string, added, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	state.Offset += added
	state.Total = total
	state.LoadedOnce = true
	state.LoadedForQuery = query
	s.emitLocked(StateEvent{Name: EventBucketUpdated, Bucket: bucket, Query: query, State: *state})
}

// DecrementTotal reduces the bucket's total by one after a confirmed
// local mutation, never below zero. The count is adjusted locally —
// the engine does not refetch just to learn the new total. Returns
// the new total.
func (s *Store) DecrementTotal(bucket Bucket) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	if state.Total > 0 {
		state.Total--
	}
	if state.Offset > 0 {
		state.Offset--
	}
	s.emitLocked(StateEvent{Name: EventCountsUpdated, Bucket: bucket, State: *state})
	return state.Total
}

// SetCounts overwrites the bucket's total, for bulk mutations that
// empty a bucket in one call.
func (s *Store) SetCounts(bucket Bucket, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	state.Total = total
	if total == 0 {
		state.Offset = 0
	}
	s.emitLocked(StateEvent{Name: EventCountsUpdated, Bucket: bucket, State: *state})
}

// ResetBucket returns one bucket to its zero state and emits
// EventBucketReset. The busy flag is preserved: a reset during an
// in-flight fetch must not open the door to a second fetch.
func (s *Store) ResetBucket(bucket Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.buckets[bucket]
	busy := state.Busy
	*state = CategoryState{Busy: busy}
	s.emitLocked(StateEvent{Name: EventBucketReset, Bucket: bucket, Query: s.query, State: *state})
}

// Reset returns every bucket to its zero state. Query and active
// bucket are preserved; callers reset those explicitly when needed.
func (s *Store) Reset() {
	for _, bucket := range AllBuckets {
		s.ResetBucket(bucket)
	}
}

// FetchContext returns the context governing in-flight fetches.
func (s *Store) FetchContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCtx
}

// AbortCurrent cancels any in-flight fetch and atomically installs a
// fresh context, which it returns. A response from the old context
// arrives cancelled and is discarded by the error taxonomy, so a
// stale search can never overwrite fresher state.
func (s *Store) AbortCurrent() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelFetch()
	s.fetchCtx, s.cancelFetch = context.WithCancel(s.base)
	return s.fetchCtx
}

// Close cancels the current fetch context. The store remains usable;
// Close exists so teardown is deterministic even when the base
// context outlives the feed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelFetch()
}
