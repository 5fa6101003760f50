// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed implements the synchronization and optimistic-mutation
// engine behind the Jobfeed client: three paginated buckets of job
// postings kept consistent with a paged REST data source, a live push
// channel, and user mutations that must appear instantly, be undoable,
// and commit to the remote store exactly once.
//
// The engine is assembled from explicitly constructed services:
//
//   - [Store] owns the application state (query, active bucket,
//     per-bucket pagination state) and publishes typed change events.
//   - [Membership] is the per-bucket dedup index that makes record
//     insertion idempotent across paged fetches and live pushes.
//   - [Pager] does pure page/offset bookkeeping for one bucket.
//   - [Limiter] is a sliding-window governor over outbound calls.
//   - [Queue] bounds how many tasks of a kind run concurrently.
//   - [Coordinator] runs the per-record mutation state machine:
//     optimistic hide, undo window, exactly-once remote commit.
//   - [Push] maintains the live subscription with capped exponential
//     backoff and feeds deduplicated inserts back into the engine.
//   - [Controller] ties the above together and drives the presenter.
//
// The view layer is behind the [Presenter] interface; the engine never
// touches rendering. All timers go through lib/clock so tests drive
// them deterministically.
package feed
