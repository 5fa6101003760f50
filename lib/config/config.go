// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for jobfeed components.
//
// Configuration is loaded from a single file specified by:
//   - JOBFEED_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides. Durations are written as
// Go duration strings ("300ms", "5s", "1m").
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for jobfeed.
type Config struct {
	// API configures the record API client.
	API APIConfig `yaml:"api"`

	// Push configures the live channel.
	Push PushConfig `yaml:"push"`

	// Limits configures the sliding-window rate limiter.
	Limits LimitsConfig `yaml:"limits"`

	// Queues configures per-queue concurrency.
	Queues QueuesConfig `yaml:"queues"`

	// Mutation configures the optimistic-mutation workflow.
	Mutation MutationConfig `yaml:"mutation"`

	// Search configures search input handling.
	Search SearchConfig `yaml:"search"`

	// Snapshot configures session persistence.
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// APIConfig configures the record API client.
type APIConfig struct {
	// BaseURL is the base URL of the record API.
	BaseURL string `yaml:"base_url"`

	// PageSize is how many records one fetch requests.
	PageSize int `yaml:"page_size"`

	// RequestTimeout bounds one HTTP request.
	RequestTimeout string `yaml:"request_timeout"`
}

// Timeout returns the parsed request timeout. Call Validate first.
func (c APIConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// PushConfig configures the live channel.
type PushConfig struct {
	// URL is the websocket endpoint of the live channel.
	URL string `yaml:"url"`

	// BackoffCap bounds the reconnect delay.
	BackoffCap string `yaml:"backoff_cap"`

	// MaxAttempts is how many consecutive connection failures are
	// tolerated before real-time updates are disabled.
	MaxAttempts int `yaml:"max_attempts"`
}

// BackoffCapDuration returns the parsed backoff cap. Call Validate first.
func (c PushConfig) BackoffCapDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffCap)
	return d
}

// LimitRuleConfig is one sliding-window admission rule.
type LimitRuleConfig struct {
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
}

// WindowDuration returns the parsed window. Call Validate first.
func (r LimitRuleConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(r.Window)
	return d
}

// LimitsConfig configures the rate limiter.
type LimitsConfig struct {
	// Operations maps operation names to their admission rules.
	Operations map[string]LimitRuleConfig `yaml:"operations"`

	// Global additionally caps aggregate traffic across all
	// operations.
	Global LimitRuleConfig `yaml:"global"`
}

// QueuesConfig configures per-queue concurrency.
type QueuesConfig struct {
	// API bounds general fetches. Default: 2.
	API int `yaml:"api"`

	// Search bounds search fetches. Keep at 1 so results resolve in
	// submission order.
	Search int `yaml:"search"`

	// Mutate bounds status-change calls. Default: 3.
	Mutate int `yaml:"mutate"`
}

// MutationConfig configures the optimistic-mutation workflow.
type MutationConfig struct {
	// UndoWindow is how long a hidden record can be brought back
	// before the change commits.
	UndoWindow string `yaml:"undo_window"`
}

// Window returns the parsed undo window. Call Validate first.
func (c MutationConfig) Window() time.Duration {
	d, _ := time.ParseDuration(c.UndoWindow)
	return d
}

// SearchConfig configures search input handling.
type SearchConfig struct {
	// Debounce is how long typing must pause before a search fires.
	Debounce string `yaml:"debounce"`
}

// DebounceDuration returns the parsed debounce. Call Validate first.
func (c SearchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Debounce)
	return d
}

// SnapshotConfig configures session persistence.
type SnapshotConfig struct {
	// Path is where the session snapshot is written. Empty disables
	// persistence.
	Path string `yaml:"path"`
}

// Default returns the default configuration. These defaults are a
// usable local setup against the mock API; the config file overrides
// them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8480",
			PageSize:       10,
			RequestTimeout: "15s",
		},
		Push: PushConfig{
			URL:         "ws://localhost:8480/v1/stream",
			BackoffCap:  "30s",
			MaxAttempts: 10,
		},
		Limits: LimitsConfig{
			Operations: map[string]LimitRuleConfig{
				"fetch":         {MaxRequests: 30, Window: "1m"},
				"search":        {MaxRequests: 10, Window: "30s"},
				"favorite":      {MaxRequests: 8, Window: "10s"},
				"status_update": {MaxRequests: 15, Window: "30s"},
				"bulk_status":   {MaxRequests: 2, Window: "1m"},
			},
			Global: LimitRuleConfig{MaxRequests: 60, Window: "1m"},
		},
		Queues: QueuesConfig{
			API:    2,
			Search: 1,
			Mutate: 3,
		},
		Mutation: MutationConfig{
			UndoWindow: "5s",
		},
		Search: SearchConfig{
			Debounce: "300ms",
		},
		Snapshot: SnapshotConfig{
			Path: filepath.Join(homeDir, ".cache", "jobfeed", "session.snapshot"),
		},
	}
}

// EnvVar names the environment variable holding the config file path.
const EnvVar = "JOBFEED_CONFIG"

// Load loads configuration from the JOBFEED_CONFIG environment
// variable. There are no fallbacks - if JOBFEED_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("JOBFEED_CONFIG environment variable not set; " +
			"set it to the path of your jobfeed.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; values merge over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${HOME} in path values for portability.
func (c *Config) expandVariables() {
	homeDir, _ := os.UserHomeDir()
	c.Snapshot.Path = strings.ReplaceAll(c.Snapshot.Path, "${HOME}", homeDir)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	}
	if c.API.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("api.page_size must be positive"))
	}
	errs = appendDurationError(errs, "api.request_timeout", c.API.RequestTimeout)

	if c.Push.URL == "" {
		errs = append(errs, fmt.Errorf("push.url is required"))
	}
	if c.Push.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("push.max_attempts must be positive"))
	}
	errs = appendDurationError(errs, "push.backoff_cap", c.Push.BackoffCap)

	for name, rule := range c.Limits.Operations {
		if rule.MaxRequests <= 0 {
			errs = append(errs, fmt.Errorf("limits.operations.%s.max_requests must be positive", name))
		}
		errs = appendDurationError(errs, "limits.operations."+name+".window", rule.Window)
	}
	if c.Limits.Global.MaxRequests > 0 {
		errs = appendDurationError(errs, "limits.global.window", c.Limits.Global.Window)
	}

	if c.Queues.API <= 0 || c.Queues.Search <= 0 || c.Queues.Mutate <= 0 {
		errs = append(errs, fmt.Errorf("queue concurrencies must be positive"))
	}

	errs = appendDurationError(errs, "mutation.undo_window", c.Mutation.UndoWindow)
	errs = appendDurationError(errs, "search.debounce", c.Search.Debounce)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// appendDurationError validates one duration field, collecting the
// error if it does not parse to a positive duration.
func appendDurationError(errs []error, field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Errorf("%s: invalid duration %q", field, value))
	}
	if d <= 0 {
		return append(errs, fmt.Errorf("%s must be positive", field))
	}
	return errs
}
