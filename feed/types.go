// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"fmt"
	"time"
)

// Bucket is one of the three relevance partitions a record is
// displayed under. Bucket assignment happens server-side at query
// time from the record's category label; the client never stores it
// on the record.
type Bucket string

const (
	// BucketMain holds postings matching the user's primary profile.
	BucketMain Bucket = "main"
	// BucketMaybe holds postings with partial relevance.
	BucketMaybe Bucket = "maybe"
	// BucketOther holds everything else.
	BucketOther Bucket = "other"
)

// AllBuckets lists the three buckets in display order.
var AllBuckets = []Bucket{BucketMain, BucketMaybe, BucketOther}

// Valid reports whether b is one of the three known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketMain, BucketMaybe, BucketOther:
		return true
	}
	return false
}

// Status is the lifecycle state of a record in the remote store.
type Status string

const (
	// StatusNew is the initial status of a freshly ingested posting.
	StatusNew Status = "new"
	// StatusFavorite marks a posting the user wants to keep.
	StatusFavorite Status = "favorite"
	// StatusDeleted marks a posting the user dismissed.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusFavorite, StatusDeleted:
		return true
	}
	return false
}

// Record is a job posting. The remote store owns it; the client holds
// transient copies keyed by ID. ID is the dedup key across paged
// fetches and live pushes.
type Record struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a record received from the remote store or the push
// channel before it touches any engine state. Malformed records are
// dropped at the boundary, never propagated.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("feed: record has empty ID")
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("feed: record %s has unknown status %q", r.ID, r.Status)
	}
	if r.Title == "" {
		return fmt.Errorf("feed: record %s has empty title", r.ID)
	}
	return nil
}

// QueryResult is a well-formed page of records from the remote store.
type QueryResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}
