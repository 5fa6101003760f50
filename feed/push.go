// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
)

// Push event types carried on the live channel.
const (
	// PushEventSubscribed acknowledges the subscription handshake.
	PushEventSubscribed = "subscribed"
	// PushEventInsert announces a newly created record.
	PushEventInsert = "insert"
)

// PushEvent is one message on the live channel.
type PushEvent struct {
	Type   string `json:"type"`
	Record Record `json:"record,omitempty"`
}

// PushConn is one established live-channel connection.
type PushConn interface {
	// ReadEvent blocks until the next event or a connection error.
	ReadEvent(ctx context.Context) (*PushEvent, error)
	Close() error
}

// DialFunc opens a live-channel connection. Tests inject scripted
// connections; production uses the websocket dialer.
type DialFunc func(ctx context.Context) (PushConn, error)

// Default reconnect policy.
const (
	DefaultBackoffCap  = 30 * time.Second
	DefaultMaxAttempts = 10
)

// PushConfig holds configuration for creating a Push.
type PushConfig struct {
	// URL is the websocket endpoint of the live channel. Ignored
	// when Dial is set.
	URL string
	// Dial overrides the websocket dialer.
	Dial DialFunc

	Membership *Membership
	Presenter  Presenter

	// Clock drives the reconnect backoff. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger

	// BackoffCap bounds the reconnect delay. Zero means DefaultBackoffCap.
	BackoffCap time.Duration
	// MaxAttempts is how many consecutive failures are tolerated
	// before the live channel is declared permanently down. Zero
	// means DefaultMaxAttempts.
	MaxAttempts int
}

// Push maintains the live record feed: one subscription at a time,
// reconnected with capped exponential backoff. Attempt k waits
// min(2^(k-1) * 1s, cap); after MaxAttempts consecutive failures the
// channel is declared down permanently and the presenter is told so
// the surrounding app can fall back to manual refresh.
//
// Inbound inserts are deduplicated against all three buckets: a live
// record's bucket assignment is not locally resolved, so an id seen
// anywhere is a duplicate, and a genuinely new id is marked in every
// bucket before being forwarded.
type Push struct {
	dial        DialFunc
	membership  *Membership
	presenter   Presenter
	clock       clock.Clock
	logger      *slog.Logger
	backoffCap  time.Duration
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	connected bool
}

// NewPush creates a Push from config. Membership and Presenter are
// required, as is one of URL and Dial.
func NewPush(config PushConfig) (*Push, error) {
	if config.Membership == nil || config.Presenter == nil {
		return nil, fmt.Errorf("feed: push requires Membership and Presenter")
	}
	if config.Dial == nil && config.URL == "" {
		return nil, fmt.Errorf("feed: push requires URL or Dial")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoffCap := config.BackoffCap
	if backoffCap <= 0 {
		backoffCap = DefaultBackoffCap
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	dial := config.Dial
	if dial == nil {
		url := config.URL
		dial = func(ctx context.Context) (PushConn, error) {
			conn, _, err := websocket.Dial(ctx, url, nil)
			if err != nil {
				return nil, fmt.Errorf("feed: websocket dial %s failed: %w", url, err)
			}
			return &wsPushConn{conn: conn}, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Push{
		dial:        dial,
		membership:  config.Membership,
		presenter:   config.Presenter,
		clock:       clk,
		logger:      logger,
		backoffCap:  backoffCap,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

// Start opens the subscription and begins the reconnect loop. It
// returns immediately; delivery happens on a background goroutine.
func (p *Push) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run()
}

// Connected reports whether a subscription is currently established.
func (p *Push) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close tears the live channel down: the connection and any pending
// reconnect timer are cancelled and the delivery goroutine is waited
// out. Safe to call whether or not Start ran.
func (p *Push) Close() {
	p.cancel()
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

func (p *Push) run() {
	defer close(p.done)

	attempt := 0
	for {
		conn, err := p.dial(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			attempt++
			p.logger.Warn("live channel connect failed",
				"attempt", attempt, "error", err)
			if !p.backoff(attempt) {
				return
			}
			continue
		}

		p.setConnected(true)
		attempt = 0
		p.logger.Info("live channel subscribed")

		err = p.readLoop(conn)
		conn.Close()
		p.setConnected(false)
		if p.ctx.Err() != nil {
			return
		}

		attempt++
		p.logger.Warn("live channel dropped",
			"attempt", attempt, "error", err)
		if !p.backoff(attempt) {
			return
		}
	}
}

// readLoop consumes events until the connection fails or the push is
// closed. Returns the terminal read error.
func (p *Push) readLoop(conn PushConn) error {
	for {
		event, err := conn.ReadEvent(p.ctx)
		if err != nil {
			return err
		}

		switch event.Type {
		case PushEventSubscribed:
			// Handshake acknowledgement, nothing to deliver.
		case PushEventInsert:
			p.handleInsert(event.Record)
		default:
			p.logger.Debug("ignoring unknown live event", "type", event.Type)
		}
	}
}

// handleInsert delivers one live record: malformed payloads are
// dropped, duplicates (an id present in any bucket) are discarded,
// and a new id is marked in all three buckets before forwarding.
func (p *Push) handleInsert(record Record) {
	if err := record.Validate(); err != nil {
		p.logger.Warn("dropping malformed live record", "error", err)
		return
	}
	if !p.membership.AddLive(record.ID) {
		p.logger.Debug("discarding duplicate live record", "record", record.ID)
		return
	}
	p.presenter.RecordArrived(record)
}

// backoff waits out the reconnect delay for the given 1-indexed
// attempt. Returns false when the attempt budget is exhausted (the
// presenter has been told the channel is down) or the push is closed.
func (p *Push) backoff(attempt int) bool {
	if attempt > p.maxAttempts {
		p.logger.Error("live channel failed permanently",
			"attempts", p.maxAttempts)
		p.presenter.RealtimeDown()
		return false
	}

	delay := time.Second << (attempt - 1)
	if delay > p.backoffCap || delay <= 0 {
		delay = p.backoffCap
	}

	fired := make(chan struct{})
	timer := p.clock.AfterFunc(delay, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-p.ctx.Done():
		timer.Stop()
		return false
	}
}

func (p *Push) setConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
}

// wsPushConn adapts a websocket connection to PushConn.
type wsPushConn struct {
	conn *websocket.Conn
}

func (w *wsPushConn) ReadEvent(ctx context.Context) (*PushEvent, error) {
	var event PushEvent
	if err := wsjson.Read(ctx, w.conn, &event); err != nil {
		return nil, fmt.Errorf("feed: websocket read failed: %w", err)
	}
	return &event, nil
}

func (w *wsPushConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "shutting down")
}
