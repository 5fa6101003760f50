// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

// jobfeed-viewer is a terminal client for the Jobfeed record API. It
// renders the three relevance buckets as tabs, streams live inserts
// over the push channel, and supports search, favorite, delete, and
// undo — all driven by the feed engine.
//
// Configuration comes from --config, the JOBFEED_CONFIG environment
// variable, or built-in defaults aimed at a local jobfeed-mock-api.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/jobfeed-foundation/jobfeed/feed"
	"github.com/jobfeed-foundation/jobfeed/lib/config"
	"github.com/jobfeed-foundation/jobfeed/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logOutput string

	flagSet := pflag.NewFlagSet("jobfeed-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&logOutput, "log-output", "", "write log records to this file (the TUI owns the terminal)")

	// Handle --version before flag parsing to match other Jobfeed binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("jobfeed-viewer")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := feed.NewStore(ctx, logger)
	membership := feed.NewMembership()

	if cfg.Snapshot.Path != "" {
		snapshot, ok, err := feed.LoadSnapshot(cfg.Snapshot.Path)
		if err != nil {
			logger.Warn("session snapshot unreadable, starting fresh", "path", cfg.Snapshot.Path, "error", err)
		} else if ok {
			snapshot.Apply(store, membership)
		}
	}

	client, err := feed.NewClient(feed.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout()},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	rules := make(map[string]feed.LimitRule, len(cfg.Limits.Operations))
	for name, rule := range cfg.Limits.Operations {
		rules[name] = feed.LimitRule{MaxRequests: rule.MaxRequests, Window: rule.WindowDuration()}
	}
	limiter := feed.NewLimiter(feed.LimiterConfig{
		Rules: rules,
		Global: feed.LimitRule{
			MaxRequests: cfg.Limits.Global.MaxRequests,
			Window:      cfg.Limits.Global.WindowDuration(),
		},
		Logger: logger,
	})

	apiQueue := feed.NewQueue("api", cfg.Queues.API, nil, logger)
	searchQueue := feed.NewQueue("search", cfg.Queues.Search, nil, logger)
	mutateQueue := feed.NewQueue("mutate", cfg.Queues.Mutate, nil, logger)

	// The presenter needs the program and the program needs the model,
	// which needs the controller, which needs the presenter. Break the
	// cycle by filling in the program pointer last; nothing sends
	// through the presenter until the engine is driven.
	presenter := &teaPresenter{}

	controller, err := feed.NewController(feed.ControllerConfig{
		Remote:         client,
		Store:          store,
		Membership:     membership,
		Limiter:        limiter,
		Presenter:      presenter,
		APIQueue:       apiQueue,
		SearchQueue:    searchQueue,
		Logger:         logger,
		PageSize:       cfg.API.PageSize,
		SearchDebounce: cfg.Search.DebounceDuration(),
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	coordinator, err := feed.NewCoordinator(feed.CoordinatorConfig{
		Remote:     client,
		Store:      store,
		Membership: membership,
		Limiter:    limiter,
		Presenter:  presenter,
		Queue:      mutateQueue,
		Logger:     logger,
		UndoWindow: cfg.Mutation.Window(),
	})
	if err != nil {
		return err
	}
	defer coordinator.Close()

	push, err := feed.NewPush(feed.PushConfig{
		URL:         cfg.Push.URL,
		Membership:  membership,
		Presenter:   presenter,
		Logger:      logger,
		BackoffCap:  cfg.Push.BackoffCapDuration(),
		MaxAttempts: cfg.Push.MaxAttempts,
	})
	if err != nil {
		return err
	}
	defer push.Close()

	active := store.Active()
	program := tea.NewProgram(newModel(controller, coordinator, active), tea.WithAltScreen())
	presenter.program = program

	// Mirror the store's busy flags into the UI spinner.
	busyEvents, cancelBusy := store.Subscribe(feed.EventBusyChanged)
	defer cancelBusy()
	go func() {
		for event := range busyEvents {
			program.Send(busyMsg{bucket: event.Bucket, busy: event.State.Busy})
		}
	}()

	push.Start()
	go controller.ActivateBucket(active)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("jobfeed-viewer: %w", err)
	}

	if cfg.Snapshot.Path != "" {
		snapshot := feed.TakeSnapshot(store, membership, time.Now())
		if err := feed.SaveSnapshot(cfg.Snapshot.Path, snapshot); err != nil {
			logger.Warn("session snapshot not saved", "path", cfg.Snapshot.Path, "error", err)
		}
	}
	return nil
}

// loadConfig resolves configuration in precedence order: the --config
// flag, the JOBFEED_CONFIG environment variable, then built-in
// defaults.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. The TUI owns the terminal, so
// without --log-output all records are discarded.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("jobfeed-viewer: open log output: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, nil))
	return logger, func() { file.Close() }, nil
}
