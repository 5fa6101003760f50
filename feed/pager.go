// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"sync"
)

// FetchPageFunc fetches one page from the remote store. limit is the
// page size and offset the absolute record offset. A nil result with
// a nil error is treated as a malformed response.
type FetchPageFunc func(ctx context.Context, limit, offset int) (*QueryResult, error)

// PageResult is the outcome of one LoadPage call.
type PageResult struct {
	// Records is the page contents. Nil for no-op calls (already
	// loading, or no more pages).
	Records []Record
	// HasMore reports whether another page may exist after this one.
	HasMore bool
	// Total is the server-reported total for the current query.
	Total int
	// Page is the zero-based index of the page just loaded.
	Page int
	// NoOp is true when the guard suppressed the fetch entirely.
	NoOp bool
}

// Pager does pure page/offset bookkeeping for one bucket: given a
// page size and a fetch function, it decides whether more pages exist
// and advances the offset. It knows nothing about buckets, queries,
// or rendering.
//
// Pager is safe for concurrent use; a LoadPage while another is in
// flight is a no-op rather than a second fetch.
type Pager struct {
	mu          sync.Mutex
	pageSize    int
	currentPage int
	total       int
	hasMore     bool
	loading     bool
}

// NewPager creates a Pager with the given page size.
func NewPager(pageSize int) *Pager {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Pager{pageSize: pageSize, hasMore: true}
}

// LoadPage fetches the next page. If a load is already in flight or
// no more pages exist, it returns a no-op result without calling
// fetch. On a malformed result or fetch error, hasMore is cleared so
// the caller stops paging, and the error is returned. The loading
// flag is cleared on every path.
func (p *Pager) LoadPage(ctx context.Context, fetch FetchPageFunc) (PageResult, error) {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		return PageResult{NoOp: true, HasMore: p.hasMore, Total: p.total}, nil
	}
	p.loading = true
	offset := p.currentPage * p.pageSize
	limit := p.pageSize
	p.mu.Unlock()

	result, err := fetch(ctx, limit, offset)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false

	if err != nil {
		p.hasMore = false
		return PageResult{Total: p.total}, err
	}
	if result == nil || result.Records == nil {
		p.hasMore = false
		return PageResult{Total: p.total}, fmt.Errorf("feed: malformed page response at offset %d", offset)
	}

	p.currentPage++
	p.total = result.Total
	p.hasMore = len(result.Records) >= p.pageSize && p.currentPage*p.pageSize < result.Total

	return PageResult{
		Records: result.Records,
		HasMore: p.hasMore,
		Total:   p.total,
		Page:    p.currentPage - 1,
	}, nil
}

// Reset returns the pager to its initial state: page zero, no total,
// more pages assumed. Called when the query or bucket resets.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentPage = 0
	p.total = 0
	p.hasMore = true
	p.loading = false
}

// HasMore reports whether another page may exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Total returns the last server-reported total.
func (p *Pager) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// NextOffset returns the offset the next LoadPage will fetch from.
func (p *Pager) NextOffset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage * p.pageSize
}
