// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
)

// LimitRule is the admission window for one operation: at most
// MaxRequests calls within any trailing Window.
type LimitRule struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a limiter check. When Allowed is false,
// RetryAfter is the wait (rounded up to whole seconds) until the
// oldest in-window call expires, and Message is ready for display.
type Decision struct {
	Allowed    bool
	Message    string
	RetryAfter time.Duration
}

// LimiterStats is a point-in-time view of limiter activity.
type LimiterStats struct {
	TotalChecks int
	Allowed     int
	Blocked     int
	// Operations is the number of distinct operation names seen.
	Operations int
}

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// Rules maps operation names to their admission windows.
	Rules map[string]LimitRule
	// Global additionally caps aggregate traffic across all
	// operations. A zero MaxRequests disables the global cap.
	Global LimitRule
	// Clock abstracts time for testing. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Limiter is a sliding-window call governor. Each check prunes
// timestamps older than the window from the operation's history and
// the global history, rejects if either list is at capacity, and
// otherwise records the call in both.
//
// This is a best-effort client-side governor, not a security
// boundary: it exists to avoid self-inflicted overload and to produce
// user-facing backoff messaging.
//
// Limiter is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]LimitRule
	global  LimitRule
	history map[string][]time.Time
	all     []time.Time
	stats   LimiterStats
	clock   clock.Clock
	logger  *slog.Logger
}

// NewLimiter creates a Limiter from the given configuration.
func NewLimiter(config LimiterConfig) *Limiter {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := make(map[string]LimitRule, len(config.Rules))
	for name, rule := range config.Rules {
		rules[name] = rule
	}
	return &Limiter{
		rules:   rules,
		global:  config.Global,
		history: make(map[string][]time.Time),
		clock:   clk,
		logger:  logger,
	}
}

// CheckLimit admits or rejects a call for the named operation.
// Operations without a configured rule are admitted (the global cap
// still applies) but logged, so a typo in an operation name shows up
// in logs instead of silently bypassing governance.
func (l *Limiter) CheckLimit(operation string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.TotalChecks++
	now := l.clock.Now()

	rule, known := l.rules[operation]
	if !known {
		l.logger.Warn("rate limit check for unconfigured operation", "operation", operation)
	}

	opHistory := pruneWindow(l.history[operation], now, rule.Window)
	l.history[operation] = opHistory
	l.all = pruneWindow(l.all, now, l.global.Window)

	if known && rule.MaxRequests > 0 && len(opHistory) >= rule.MaxRequests {
		return l.rejectLocked(operation, opHistory[0], rule, now)
	}
	if l.global.MaxRequests > 0 && len(l.all) >= l.global.MaxRequests {
		return l.rejectLocked(operation, l.all[0], l.global, now)
	}

	l.history[operation] = append(opHistory, now)
	l.all = append(l.all, now)
	l.stats.Allowed++
	return Decision{Allowed: true}
}

// rejectLocked builds the not-allowed decision from the oldest
// in-window call. Must be called with l.mu held.
func (l *Limiter) rejectLocked(operation string, oldest time.Time, rule LimitRule, now time.Time) Decision {
	l.stats.Blocked++

	// Round up to whole seconds so the message never promises a
	// retry earlier than the window actually allows.
	remaining := oldest.Add(rule.Window).Sub(now)
	seconds := int64((remaining + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	retryAfter := time.Duration(seconds) * time.Second

	decision := Decision{
		Message: fmt.Sprintf("Rate limit exceeded for %s: max %d requests per %s. Retry in %ds.",
			operation, rule.MaxRequests, rule.Window, seconds),
		RetryAfter: retryAfter,
	}
	l.logger.Warn("rate limit exceeded",
		"operation", operation,
		"max_requests", rule.MaxRequests,
		"window", rule.Window,
		"retry_after", retryAfter,
	)
	return decision
}

// Stats returns a snapshot of limiter activity counters.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats
	stats.Operations = len(l.history)
	return stats
}

// pruneWindow drops timestamps at or older than now-window. A zero
// window keeps nothing (the rule is effectively disabled).
func pruneWindow(history []time.Time, now time.Time, window time.Duration) []time.Time {
	if window <= 0 {
		return nil
	}
	cutoff := now.Add(-window)
	kept := history[:0]
	for _, stamp := range history {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	return kept
}
