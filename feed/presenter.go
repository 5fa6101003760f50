// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

// Presenter is the explicit capability surface the engine drives the
// view layer through. Every hook is mandatory — a frontend that does
// not care about a capability embeds [NopPresenter] instead of the
// engine null-checking optional callbacks at every call site.
//
// Presenter methods are called from engine goroutines and timer
// callbacks; implementations must hand off to their own event loop
// rather than doing blocking work inline.
type Presenter interface {
	// RenderRecords appends a page of records to the bucket's list.
	RenderRecords(bucket Bucket, records []Record)

	// RecordArrived delivers a single live record. Bucket assignment
	// is not locally resolved for live inserts, so the view decides
	// where (and whether) to surface it.
	RecordArrived(record Record)

	// RemoveRecord hides a record optimistically, before the remote
	// mutation is committed.
	RemoveRecord(bucket Bucket, id string)

	// RestoreRecord re-shows a record after an undo or a rollback.
	RestoreRecord(bucket Bucket, record Record)

	// UpdateCount refreshes the bucket's numeric counter.
	UpdateCount(bucket Bucket, total int)

	// ShowEmptyState tells the view the bucket's visible list is
	// empty.
	ShowEmptyState(bucket Bucket)

	// ShowUndoNotice surfaces the undo affordance for an optimistic
	// mutation. Invoking undo before the window elapses cancels the
	// mutation; the engine owns the window timer.
	ShowUndoNotice(bucket Bucket, record Record, undo func())

	// ShowNotice surfaces a one-shot informational message (limiter
	// rejections, mutation failures).
	ShowNotice(message string)

	// ShowError surfaces a bucket-scoped error. retry is non-nil for
	// transient failures and nil for permanent ones.
	ShowError(bucket Bucket, message string, retry func())

	// RealtimeDown tells the view the live feed has permanently
	// failed and manual refresh is the fallback.
	RealtimeDown()
}

// NopPresenter implements Presenter with no-ops. Embed it to opt out
// of capabilities:
//
//	type countingView struct{ feed.NopPresenter }
type NopPresenter struct{}

func (NopPresenter) RenderRecords(Bucket, []Record) {}
func (NopPresenter) RecordArrived(Record)           {}
func (NopPresenter) RemoveRecord(Bucket, string)    {}
func (NopPresenter) RestoreRecord(Bucket, Record)   {}
func (NopPresenter) UpdateCount(Bucket, int)        {}
func (NopPresenter) ShowEmptyState(Bucket)          {}
func (NopPresenter) ShowUndoNotice(Bucket, Record, func()) {}
func (NopPresenter) ShowNotice(string)                     {}
func (NopPresenter) ShowError(Bucket, string, func())      {}
func (NopPresenter) RealtimeDown()                         {}

var _ Presenter = NopPresenter{}
