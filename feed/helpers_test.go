// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// epochTest is the fake clock start time shared across the package's
// tests, chosen to make timestamps in failure output recognizable.
var epochTest = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testRecord(id string) Record {
	return Record{
		ID:        id,
		Category:  "engineering",
		Title:     "Record " + id,
		Status:    StatusNew,
		CreatedAt: epochTest,
	}
}

// undoNotice captures one ShowUndoNotice call.
type undoNotice struct {
	Bucket Bucket
	Record Record
	Undo   func()
}

// presentedError captures one ShowError call.
type presentedError struct {
	Bucket  Bucket
	Message string
	Retry   func()
}

// removal captures one RemoveRecord call.
type removal struct {
	Bucket Bucket
	ID     string
}

// restoration captures one RestoreRecord call.
type restoration struct {
	Bucket Bucket
	Record Record
}

// fakePresenter records every presenter call on buffered channels so
// tests can assert ordering with testutil.RequireReceive.
type fakePresenter struct {
	mu       sync.Mutex
	rendered map[Bucket][]Record
	counts   map[Bucket]int

	Arrived      chan Record
	Removed      chan removal
	Restored     chan restoration
	Counted      chan Bucket
	Empty        chan Bucket
	UndoNotices  chan undoNotice
	Notices      chan string
	Errors       chan presentedError
	Down         chan struct{}
	RenderedPage chan []Record
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{
		rendered:     make(map[Bucket][]Record),
		counts:       make(map[Bucket]int),
		Arrived:      make(chan Record, 16),
		Removed:      make(chan removal, 16),
		Restored:     make(chan restoration, 16),
		Counted:      make(chan Bucket, 16),
		Empty:        make(chan Bucket, 16),
		UndoNotices:  make(chan undoNotice, 16),
		Notices:      make(chan string, 16),
		Errors:       make(chan presentedError, 16),
		Down:         make(chan struct{}, 1),
		RenderedPage: make(chan []Record, 16),
	}
}

var _ Presenter = (*fakePresenter)(nil)

func (p *fakePresenter) RenderRecords(bucket Bucket, records []Record) {
	p.mu.Lock()
	p.rendered[bucket] = append(p.rendered[bucket], records...)
	p.mu.Unlock()
	p.RenderedPage <- records
}

func (p *fakePresenter) RecordArrived(record Record) {
	p.Arrived <- record
}

func (p *fakePresenter) RemoveRecord(bucket Bucket, id string) {
	p.Removed <- removal{Bucket: bucket, ID: id}
}

func (p *fakePresenter) RestoreRecord(bucket Bucket, record Record) {
	p.Restored <- restoration{Bucket: bucket, Record: record}
}

func (p *fakePresenter) UpdateCount(bucket Bucket, total int) {
	p.mu.Lock()
	p.counts[bucket] = total
	p.mu.Unlock()
	p.Counted <- bucket
}

func (p *fakePresenter) ShowEmptyState(bucket Bucket) {
	p.Empty <- bucket
}

func (p *fakePresenter) ShowUndoNotice(bucket Bucket, record Record, undo func()) {
	p.UndoNotices <- undoNotice{Bucket: bucket, Record: record, Undo: undo}
}

func (p *fakePresenter) ShowNotice(message string) {
	p.Notices <- message
}

func (p *fakePresenter) ShowError(bucket Bucket, message string, retry func()) {
	p.Errors <- presentedError{Bucket: bucket, Message: message, Retry: retry}
}

func (p *fakePresenter) RealtimeDown() {
	select {
	case p.Down <- struct{}{}:
	default:
	}
}

// Rendered returns a copy of everything rendered into the bucket so far.
func (p *fakePresenter) Rendered(bucket Bucket) []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.rendered[bucket]))
	copy(out, p.rendered[bucket])
	return out
}

// Count returns the last total pushed for the bucket.
func (p *fakePresenter) Count(bucket Bucket) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[bucket]
}

// fakeRemote is a scripted Remote. Pages are keyed by bucket; the
// per-method error fields make any call fail. Every call is counted
// under the mutex so tests can assert how many requests went out.
type fakeRemote struct {
	mu sync.Mutex

	pages map[Bucket][]Record

	queryErr      error
	statusErr     error
	bulkErr       error
	queryCalls    int
	statusCalls   []statusCall
	bulkCalls     int
	queryStarted  chan struct{}
	queryRelease  chan struct{}
	statusStarted chan struct{}
	statusRelease chan struct{}
}

type statusCall struct {
	ID     string
	Status Status
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{pages: make(map[Bucket][]Record)}
}

var _ Remote = (*fakeRemote)(nil)

// seed installs count records "b-0".."b-N" as the bucket's backing set.
func (r *fakeRemote) seed(bucket Bucket, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[bucket] = nil
	for i := 0; i < count; i++ {
		r.pages[bucket] = append(r.pages[bucket], testRecord(fmt.Sprintf("%s-%d", bucket, i)))
	}
}

func (r *fakeRemote) Query(ctx context.Context, bucket Bucket, limit, offset int, query string) (*QueryResult, error) {
	r.mu.Lock()
	r.queryCalls++
	err := r.queryErr
	started := r.queryStarted
	release := r.queryRelease
	all := r.pages[bucket]
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &QueryResult{Records: []Record{}, Total: len(all)}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		if query == "" || containsFold(all[i].Title, query) {
			result.Records = append(result.Records, all[i])
		}
	}
	return result, nil
}

func (r *fakeRemote) SetStatus(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	r.statusCalls = append(r.statusCalls, statusCall{ID: id, Status: status})
	err := r.statusErr
	started := r.statusStarted
	release := r.statusRelease
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *fakeRemote) SetStatusBulk(ctx context.Context, bucket Bucket, status Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkCalls++
	if r.bulkErr != nil {
		return 0, r.bulkErr
	}
	return len(r.pages[bucket]), nil
}

func (r *fakeRemote) queries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queryCalls
}

func (r *fakeRemote) statuses() []statusCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statusCall, len(r.statusCalls))
	copy(out, r.statusCalls)
	return out
}
