// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"sort"
	"sync"
)

// Membership is the dedup index: per bucket, the set of record IDs
// already materialized. Paged fetches and live pushes both funnel
// through it, so a record delivered N times in any order appears in
// the rendered state exactly once per bucket.
//
// IDs live in a bucket's set for one load epoch: ResetBucket starts a
// new epoch and the same IDs may be added again.
//
// Membership is safe for concurrent use.
type Membership struct {
	mu      sync.Mutex
	buckets map[Bucket]map[string]struct{}
}

// NewMembership creates an empty index covering all three buckets.
func NewMembership() *Membership {
	index := &Membership{buckets: make(map[Bucket]map[string]struct{}, len(AllBuckets))}
	for _, bucket := range AllBuckets {
		index.buckets[bucket] = make(map[string]struct{})
	}
	return index
}

// Add marks id present in the bucket. Returns true when the id was
// new in this epoch, false for a duplicate.
func (m *Membership) Add(bucket Bucket, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.buckets[bucket]
	if _, seen := set[id]; seen {
		return false
	}
	set[id] = struct{}{}
	return true
}

// AddLive handles a live-insert notification: a live update is
// global, not bucket-scoped, and the bucket assignment of a freshly
// inserted record is not yet locally resolved. If the id is already
// present in any bucket the insert is a duplicate and nothing
// changes; otherwise the id is marked present in all three buckets.
// Returns true when the record should be forwarded.
func (m *Membership) AddLive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.buckets {
		if _, seen := set[id]; seen {
			return false
		}
	}
	for _, set := range m.buckets {
		set[id] = struct{}{}
	}
	return true
}

// Contains reports whether id is present in the bucket.
func (m *Membership) Contains(bucket Bucket, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, seen := m.buckets[bucket][id]
	return seen
}

// Filter adds each record to the bucket and returns only those that
// were new, preserving order. This is the idempotent insert path for
// paged fetch results.
func (m *Membership) Filter(bucket Bucket, records []Record) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.buckets[bucket]
	fresh := records[:0:0]
	for _, record := range records {
		if _, seen := set[record.ID]; seen {
			continue
		}
		set[record.ID] = struct{}{}
		fresh = append(fresh, record)
	}
	return fresh
}

// Remove drops id from the bucket, freeing the slot for a later
// legitimate re-insert (e.g., after a rolled-back delete was
// re-fetched).
func (m *Membership) Remove(bucket Bucket, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], id)
}

// Len returns the number of IDs present in the bucket.
func (m *Membership) Len(bucket Bucket) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets[bucket])
}

// ResetBucket starts a new load epoch for one bucket.
func (m *Membership) ResetBucket(bucket Bucket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = make(map[string]struct{})
}

// Reset starts a new load epoch for every bucket.
func (m *Membership) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bucket := range AllBuckets {
		m.buckets[bucket] = make(map[string]struct{})
	}
}

// Seen returns the IDs present per bucket, sorted for deterministic
// serialization. Used by the session snapshot.
func (m *Membership) Seen() map[Bucket][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[Bucket][]string, len(m.buckets))
	for bucket, set := range m.buckets {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		seen[bucket] = ids
	}
	return seen
}

// Restore marks the given IDs present, merging with current contents.
// Used when resuming from a session snapshot.
func (m *Membership) Restore(seen map[Bucket][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for bucket, ids := range seen {
		set, ok := m.buckets[bucket]
		if !ok {
			continue
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
}
