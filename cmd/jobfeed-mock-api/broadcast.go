// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jobfeed-foundation/jobfeed/feed"
)

// broadcaster fans record inserts out to every connected websocket
// subscriber. A subscriber that cannot keep up is disconnected rather
// than allowed to block the fan-out.
type broadcaster struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[chan feed.PushEvent]struct{}
	closed      bool
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		logger:      logger,
		subscribers: make(map[chan feed.PushEvent]struct{}),
	}
}

// announce queues an insert event to every subscriber.
func (b *broadcaster) announce(record feed.Record) {
	event := feed.PushEvent{Type: feed.PushEventInsert, Record: record}
	b.mu.Lock()
	defer b.mu.Unlock()
	for subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
			// Slow consumer: drop it, the write loop will notice.
			close(subscriber)
			delete(b.subscribers, subscriber)
		}
	}
}

// close disconnects every subscriber and refuses new ones.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for subscriber := range b.subscribers {
		close(subscriber)
		delete(b.subscribers, subscriber)
	}
}

func (b *broadcaster) subscribe() (chan feed.PushEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	events := make(chan feed.PushEvent, 64)
	b.subscribers[events] = struct{}{}
	return events, true
}

func (b *broadcaster) unsubscribe(events chan feed.PushEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[events]; ok {
		delete(b.subscribers, events)
	}
}

// handleSubscribe upgrades the request to a websocket, acknowledges
// the subscription, and streams insert events until the client goes
// away or the server shuts down.
func (b *broadcaster) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	events, ok := b.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer b.unsubscribe(events)

	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, feed.PushEvent{Type: feed.PushEventSubscribed}); err != nil {
		return
	}
	b.logger.Info("stream subscriber connected")

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				b.logger.Info("stream subscriber dropped", "error", err)
				return
			}
		}
	}
}
