// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

// jobfeed-mock-api is an in-memory record API for local development
// and integration testing. It serves the paged record endpoints the
// viewer consumes, plus a websocket stream that announces inserts,
// so the full fetch/live/mutate pipeline can be exercised without
// production infrastructure.
//
// Endpoints:
//
//	GET  /v1/records?bucket=&limit=&offset=&q=   one page of records
//	PUT  /v1/records/{id}/status                 set one record's status
//	POST /v1/records/status                      bulk status by bucket
//	POST /v1/records                             create a record
//	GET  /v1/stream                              websocket insert feed
//
// With --auto-insert, the server creates a record on an interval,
// which is useful for watching live updates arrive in the viewer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jobfeed-foundation/jobfeed/feed"
	"github.com/jobfeed-foundation/jobfeed/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var listen string
	var seed int
	var autoInsert time.Duration

	flagSet := pflag.NewFlagSet("jobfeed-mock-api", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", ":8480", "address to listen on")
	flagSet.IntVar(&seed, "seed", 40, "number of records to seed at startup")
	flagSet.DurationVar(&autoInsert, "auto-insert", 0, "insert a new record on this interval (0 disables)")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("jobfeed-mock-api")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	records := newStore()
	records.seed(seed, time.Now())

	stream := newBroadcaster(logger)
	server := &apiServer{
		store:  records,
		stream: stream,
		logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if autoInsert > 0 {
		go server.autoInsertLoop(ctx, autoInsert)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/records", server.handleQuery)
	mux.HandleFunc("PUT /v1/records/{id}/status", server.handleSetStatus)
	mux.HandleFunc("POST /v1/records/status", server.handleBulkStatus)
	mux.HandleFunc("POST /v1/records", server.handleCreate)
	mux.HandleFunc("GET /v1/stream", stream.handleSubscribe)

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("mock API listening", "addr", listen, "seeded", seed)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream.close()
	return httpServer.Shutdown(shutdownCtx)
}

type apiServer struct {
	store  *store
	stream *broadcaster
	logger *slog.Logger
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bucket := feed.Bucket(q.Get("bucket"))
	if !bucket.Valid() {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "unknown bucket %q", q.Get("bucket"))
		return
	}
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil || limit <= 0 || limit > 100 {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "invalid limit %q", q.Get("limit"))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "invalid offset %q", q.Get("offset"))
		return
	}

	result := s.store.query(bucket, limit, offset, q.Get("q"))
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Status feed.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Status.Valid() {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "invalid status payload")
		return
	}
	if !s.store.setStatus(id, body.Status) {
		writeError(w, http.StatusNotFound, feed.ErrCodeNotFound, "no record %s", id)
		return
	}
	s.logger.Info("status updated", "record", id, "status", body.Status)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *apiServer) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bucket feed.Bucket `json:"bucket"`
		Status feed.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Bucket.Valid() || !body.Status.Valid() {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "invalid bulk status payload")
		return
	}
	updated := s.store.setStatusBulk(body.Bucket, body.Status)
	s.logger.Info("bulk status applied", "bucket", body.Bucket, "status", body.Status, "updated", updated)
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *apiServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
		Title    string `json:"title"`
		Body     string `json:"body"`
		URL      string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusBadRequest, feed.ErrCodeInvalidParam, "invalid record payload")
		return
	}
	record := s.store.insert(body.Category, body.Title, body.Body, body.URL, time.Now())
	s.stream.announce(record)
	s.logger.Info("record created", "record", record.ID, "category", record.Category)
	writeJSON(w, http.StatusCreated, record)
}

// autoInsertLoop creates a record on the given interval until ctx is
// cancelled.
func (s *apiServer) autoInsertLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			record := s.store.insert(
				"backend",
				fmt.Sprintf("Auto-posted role #%d", n),
				"Created by --auto-insert.",
				"https://jobs.example.com/auto",
				time.Now(),
			)
			s.stream.announce(record)
			s.logger.Info("auto-inserted record", "record", record.ID)
		}
	}
}

func intParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, format string, args ...any) {
	writeJSON(w, status, feed.APIError{Code: code, Message: fmt.Sprintf(format, args...)})
}
