// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/clock"
	"github.com/jobfeed-foundation/jobfeed/lib/testutil"
)

// scriptedConn is a PushConn fed by a channel. Closing the channel
// simulates the connection dropping.
type scriptedConn struct {
	events chan *PushEvent

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		events: make(chan *PushEvent, 16),
		closed: make(chan struct{}),
	}
}

func (c *scriptedConn) ReadEvent(ctx context.Context) (*PushEvent, error) {
	select {
	case event, ok := <-c.events:
		if !ok {
			return nil, errors.New("connection reset")
		}
		return event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) drop() {
	close(c.events)
}

func insertEvent(id string) *PushEvent {
	record := testRecord(id)
	return &PushEvent{Type: PushEventInsert, Record: record}
}

type pushFixture struct {
	push       *Push
	presenter  *fakePresenter
	membership *Membership
	clock      *clock.FakeClock

	// dialed receives the 1-indexed dial attempt number as each dial
	// is made.
	dialed chan int
}

// newPushFixture builds a Push whose dialer pops outcomes from conns:
// a nil entry fails the dial, a connection succeeds it. When the
// script is exhausted further dials fail.
func newPushFixture(t *testing.T, config PushConfig, conns ...*scriptedConn) *pushFixture {
	t.Helper()
	f := &pushFixture{
		presenter:  newFakePresenter(),
		membership: NewMembership(),
		clock:      clock.Fake(epochTest),
		dialed:     make(chan int, 32),
	}

	var mu sync.Mutex
	calls := 0
	config.Dial = func(ctx context.Context) (PushConn, error) {
		mu.Lock()
		calls++
		n := calls
		var conn *scriptedConn
		if n <= len(conns) {
			conn = conns[n-1]
		}
		mu.Unlock()
		f.dialed <- n
		if conn == nil {
			return nil, errors.New("dial refused")
		}
		return conn, nil
	}
	config.Membership = f.membership
	config.Presenter = f.presenter
	config.Clock = f.clock
	config.Logger = slog.Default()

	push, err := NewPush(config)
	if err != nil {
		t.Fatalf("NewPush: %v", err)
	}
	f.push = push
	t.Cleanup(push.Close)
	return f
}

func TestPushDeliversNewRecordsOnce(t *testing.T) {
	conn := newScriptedConn()
	f := newPushFixture(t, PushConfig{}, conn)
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "initial dial")
	conn.events <- &PushEvent{Type: PushEventSubscribed}
	conn.events <- insertEvent("r1")
	conn.events <- insertEvent("r1")
	conn.events <- insertEvent("r2")

	first := testutil.RequireReceive(t, f.presenter.Arrived, 5*time.Second, "first insert")
	if first.ID != "r1" {
		t.Errorf("expected r1, got %s", first.ID)
	}
	second := testutil.RequireReceive(t, f.presenter.Arrived, 5*time.Second, "second insert")
	if second.ID != "r2" {
		t.Errorf("duplicate should be discarded, got %s", second.ID)
	}

	// A live insert marks every bucket: assignment is unresolved.
	for _, bucket := range AllBuckets {
		if !f.membership.Contains(bucket, "r1") {
			t.Errorf("live record not marked in %s", bucket)
		}
	}
}

func TestPushDiscardsRecordSeenByFetch(t *testing.T) {
	conn := newScriptedConn()
	f := newPushFixture(t, PushConfig{}, conn)
	f.membership.Add(BucketMaybe, "r1")
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "initial dial")
	conn.events <- insertEvent("r1")
	conn.events <- insertEvent("r2")

	got := testutil.RequireReceive(t, f.presenter.Arrived, 5*time.Second, "insert")
	if got.ID != "r2" {
		t.Errorf("id present in any bucket is a duplicate, got %s", got.ID)
	}
}

func TestPushDropsMalformedRecords(t *testing.T) {
	conn := newScriptedConn()
	f := newPushFixture(t, PushConfig{}, conn)
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "initial dial")
	conn.events <- &PushEvent{Type: PushEventInsert, Record: Record{Title: "no id"}}
	conn.events <- insertEvent("r1")

	got := testutil.RequireReceive(t, f.presenter.Arrived, 5*time.Second, "valid insert")
	if got.ID != "r1" {
		t.Errorf("malformed record should be dropped, got %s", got.ID)
	}
}

func TestPushReconnectBackoffAndReset(t *testing.T) {
	conn := newScriptedConn()
	second := newScriptedConn()
	// Dials: fail, fail, succeed, then (after drop) succeed again.
	f := newPushFixture(t, PushConfig{}, nil, nil, conn, second)
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 1")
	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Second)

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 2")
	f.clock.WaitForTimers(1)
	f.clock.Advance(2 * time.Second)

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 3")
	conn.events <- insertEvent("r1")
	testutil.RequireReceive(t, f.presenter.Arrived, 5*time.Second, "insert after reconnect")

	// A successful subscription resets the attempt counter: the next
	// failure starts the backoff ladder over at one second.
	conn.drop()
	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Second)
	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt after reset")
}

func TestPushBackoffIsCapped(t *testing.T) {
	f := newPushFixture(t, PushConfig{BackoffCap: 4 * time.Second, MaxAttempts: 100})
	f.push.Start()

	// Delays: 1s, 2s, 4s, then capped at 4s.
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 1")
	for i, delay := range expected {
		f.clock.WaitForTimers(1)

		// Advancing by less than the expected delay must not trigger
		// the next dial.
		f.clock.Advance(delay - time.Millisecond)
		select {
		case n := <-f.dialed:
			t.Fatalf("dial %d fired before its backoff elapsed (step %d)", n, i)
		default:
		}

		f.clock.Advance(time.Millisecond)
		testutil.RequireReceive(t, f.dialed, 5*time.Second, "next attempt")
	}
}

func TestPushGivesUpAfterMaxAttempts(t *testing.T) {
	f := newPushFixture(t, PushConfig{MaxAttempts: 2})
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 1")
	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Second)

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 2")
	f.clock.WaitForTimers(1)
	f.clock.Advance(2 * time.Second)

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 3")
	testutil.RequireReceive(t, f.presenter.Down, 5*time.Second, "realtime failed signal")

	// The loop has ended: no more timers, no more dials.
	f.push.Close()
	if f.clock.PendingCount() != 0 {
		t.Errorf("timers leaked after permanent failure: %d", f.clock.PendingCount())
	}
}

func TestPushCloseCancelsReconnectTimer(t *testing.T) {
	f := newPushFixture(t, PushConfig{})
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "attempt 1")
	f.clock.WaitForTimers(1)

	f.push.Close()

	if f.clock.PendingCount() != 0 {
		t.Errorf("reconnect timer leaked across Close: %d pending", f.clock.PendingCount())
	}
	select {
	case n := <-f.dialed:
		t.Fatalf("dial %d after Close", n)
	default:
	}
}

func TestPushCloseDuringRead(t *testing.T) {
	conn := newScriptedConn()
	f := newPushFixture(t, PushConfig{}, conn)
	f.push.Start()

	testutil.RequireReceive(t, f.dialed, 5*time.Second, "initial dial")

	f.push.Close()
	testutil.RequireClosed(t, conn.closed, 5*time.Second, "connection close on teardown")
}
