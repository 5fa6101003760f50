// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobfeed-foundation/jobfeed/feed"
)

// categories per bucket. The bucket of a record is determined by its
// category label, the same rule the production classifier applies.
var bucketCategories = map[feed.Bucket][]string{
	feed.BucketMain:  {"backend", "distributed-systems", "platform"},
	feed.BucketMaybe: {"devops", "data-engineering"},
	feed.BucketOther: {"frontend", "mobile", "design"},
}

func bucketForCategory(category string) feed.Bucket {
	for bucket, categories := range bucketCategories {
		for _, c := range categories {
			if c == category {
				return bucket
			}
		}
	}
	return feed.BucketOther
}

// store is the in-memory record store backing the mock API. Records
// keep insertion order, newest last; a deleted record stays in the
// slice with its status flipped so repeated deletes 404 realistically
// only for ids that never existed.
type store struct {
	mu      sync.Mutex
	records []*feed.Record
	byID    map[string]*feed.Record
	seq     int
}

func newStore() *store {
	return &store{byID: make(map[string]*feed.Record)}
}

// insert creates a record and returns a copy of it.
func (s *store) insert(category, title, body, url string, now time.Time) feed.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record := &feed.Record{
		ID:        uuid.NewString(),
		Category:  category,
		Title:     title,
		Body:      body,
		URL:       url,
		Status:    feed.StatusNew,
		CreatedAt: now,
	}
	s.records = append(s.records, record)
	s.byID[record.ID] = record
	return *record
}

// seed populates the store with count plausible records per bucket
// rotation.
func (s *store) seed(count int, now time.Time) {
	titles := []string{
		"Senior Go Engineer",
		"Site Reliability Engineer",
		"Data Pipeline Developer",
		"Staff Backend Engineer",
		"Infrastructure Engineer",
	}
	var categories []string
	for _, bucket := range feed.AllBuckets {
		categories = append(categories, bucketCategories[bucket]...)
	}
	for i := 0; i < count; i++ {
		category := categories[i%len(categories)]
		title := fmt.Sprintf("%s (%s)", titles[i%len(titles)], category)
		s.insert(category, title, "Remote-friendly. Posted by the mock API.", "https://jobs.example.com/"+category, now)
	}
}

// query returns one page of visible records for a bucket, filtered by
// the search text, plus the total match count.
func (s *store) query(bucket feed.Bucket, limit, offset int, text string) feed.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []feed.Record
	for _, record := range s.records {
		if record.Status == feed.StatusDeleted {
			continue
		}
		if bucketForCategory(record.Category) != bucket {
			continue
		}
		if text != "" && !matchesText(record, text) {
			continue
		}
		matches = append(matches, *record)
	}

	result := feed.QueryResult{Records: []feed.Record{}, Total: len(matches)}
	for i := offset; i < len(matches) && i < offset+limit; i++ {
		result.Records = append(result.Records, matches[i])
	}
	return result
}

func matchesText(record *feed.Record, text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(strings.ToLower(record.Title), text) ||
		strings.Contains(strings.ToLower(record.Body), text) ||
		strings.Contains(strings.ToLower(record.Category), text)
}

// setStatus updates one record. Returns false if the id is unknown.
func (s *store) setStatus(id string, status feed.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return false
	}
	record.Status = status
	return true
}

// setStatusBulk applies status to every visible record in the bucket
// and returns how many changed.
func (s *store) setStatusBulk(bucket feed.Bucket, status feed.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, record := range s.records {
		if record.Status == feed.StatusDeleted {
			continue
		}
		if bucketForCategory(record.Category) != bucket {
			continue
		}
		record.Status = status
		updated++
	}
	return updated
}
