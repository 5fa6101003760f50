// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobfeed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://jobs.example.com
  page_size: 25
mutation:
  undo_window: 8s
limits:
  operations:
    favorite:
      max_requests: 3
      window: 5s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.API.BaseURL != "https://jobs.example.com" {
		t.Errorf("base_url not applied: %q", cfg.API.BaseURL)
	}
	if cfg.API.PageSize != 25 {
		t.Errorf("page_size not applied: %d", cfg.API.PageSize)
	}
	if cfg.Mutation.Window() != 8*time.Second {
		t.Errorf("undo_window not applied: %v", cfg.Mutation.Window())
	}
	if rule := cfg.Limits.Operations["favorite"]; rule.MaxRequests != 3 || rule.WindowDuration() != 5*time.Second {
		t.Errorf("favorite rule not applied: %+v", rule)
	}

	// Untouched sections keep their defaults.
	if cfg.Queues.Search != 1 {
		t.Errorf("search queue default lost: %d", cfg.Queues.Search)
	}
	if cfg.Push.MaxAttempts != 10 {
		t.Errorf("push default lost: %d", cfg.Push.MaxAttempts)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("JOBFEED_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when JOBFEED_CONFIG is unset")
	}
}

func TestLoadFromEnvVar(t *testing.T) {
	path := writeConfig(t, "api:\n  page_size: 7\n")
	t.Setenv("JOBFEED_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.PageSize != 7 {
		t.Errorf("expected page_size 7, got %d", cfg.API.PageSize)
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := Default()
	cfg.Search.Debounce = "soon"
	cfg.Mutation.UndoWindow = "-5s"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "search.debounce") {
		t.Errorf("missing debounce error: %v", err)
	}
	if !strings.Contains(err.Error(), "mutation.undo_window") {
		t.Errorf("missing undo window error: %v", err)
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.Operations["fetch"] = LimitRuleConfig{MaxRequests: 0, Window: "1m"}
	cfg.Queues.API = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "limits.operations.fetch") {
		t.Errorf("missing limiter error: %v", err)
	}
	if !strings.Contains(err.Error(), "queue concurrencies") {
		t.Errorf("missing queue error: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	path := writeConfig(t, "snapshot:\n  path: ${HOME}/state/session.snapshot\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if strings.Contains(cfg.Snapshot.Path, "${HOME}") {
		t.Errorf("home not expanded: %q", cfg.Snapshot.Path)
	}
}
