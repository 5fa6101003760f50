// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jobfeed-foundation/jobfeed/feed"
)

// recordsMsg delivers a rendered page of records for a bucket.
type recordsMsg struct {
	bucket  feed.Bucket
	records []feed.Record
}

// arrivedMsg delivers a single live record.
type arrivedMsg struct {
	record feed.Record
}

// removeMsg hides a record optimistically.
type removeMsg struct {
	bucket feed.Bucket
	id     string
}

// restoreMsg re-shows a record after an undo or rollback.
type restoreMsg struct {
	bucket feed.Bucket
	record feed.Record
}

// countMsg updates a bucket's total counter.
type countMsg struct {
	bucket feed.Bucket
	total  int
}

// emptyMsg marks a bucket's visible list as empty.
type emptyMsg struct {
	bucket feed.Bucket
}

// undoNoticeMsg surfaces the undo affordance for a pending mutation.
type undoNoticeMsg struct {
	bucket feed.Bucket
	record feed.Record
	undo   func()
}

// noticeMsg shows a one-shot informational message.
type noticeMsg struct {
	text string
}

// errorMsg shows a bucket-scoped error. retry is nil for permanent
// failures.
type errorMsg struct {
	bucket feed.Bucket
	text   string
	retry  func()
}

// realtimeDownMsg marks the live channel as permanently failed.
type realtimeDownMsg struct{}

// busyMsg mirrors a bucket's busy flag into the UI.
type busyMsg struct {
	bucket feed.Bucket
	busy   bool
}

// teaPresenter adapts the engine's presenter surface to the bubbletea
// message loop. Engine goroutines call these methods; program.Send
// hands off to the UI goroutine, so nothing here blocks.
type teaPresenter struct {
	program *tea.Program
}

var _ feed.Presenter = (*teaPresenter)(nil)

func (p *teaPresenter) RenderRecords(bucket feed.Bucket, records []feed.Record) {
	p.program.Send(recordsMsg{bucket: bucket, records: records})
}

func (p *teaPresenter) RecordArrived(record feed.Record) {
	p.program.Send(arrivedMsg{record: record})
}

func (p *teaPresenter) RemoveRecord(bucket feed.Bucket, id string) {
	p.program.Send(removeMsg{bucket: bucket, id: id})
}

func (p *teaPresenter) RestoreRecord(bucket feed.Bucket, record feed.Record) {
	p.program.Send(restoreMsg{bucket: bucket, record: record})
}

func (p *teaPresenter) UpdateCount(bucket feed.Bucket, total int) {
	p.program.Send(countMsg{bucket: bucket, total: total})
}

func (p *teaPresenter) ShowEmptyState(bucket feed.Bucket) {
	p.program.Send(emptyMsg{bucket: bucket})
}

func (p *teaPresenter) ShowUndoNotice(bucket feed.Bucket, record feed.Record, undo func()) {
	p.program.Send(undoNoticeMsg{bucket: bucket, record: record, undo: undo})
}

func (p *teaPresenter) ShowNotice(message string) {
	p.program.Send(noticeMsg{text: message})
}

func (p *teaPresenter) ShowError(bucket feed.Bucket, message string, retry func()) {
	p.program.Send(errorMsg{bucket: bucket, text: message, retry: retry})
}

func (p *teaPresenter) RealtimeDown() {
	p.program.Send(realtimeDownMsg{})
}
