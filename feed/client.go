// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Remote is the surface the engine needs from the record store. Two
// implementations exist: *Client (HTTP) and test fakes.
type Remote interface {
	// Query fetches one page of records for a bucket. query may be
	// empty for an unfiltered feed.
	Query(ctx context.Context, bucket Bucket, limit, offset int, query string) (*QueryResult, error)

	// SetStatus persists a single record's status change.
	SetStatus(ctx context.Context, id string, status Status) error

	// SetStatusBulk applies a status to every record currently in
	// the bucket. Returns the number of records updated.
	SetStatusBulk(ctx context.Context, bucket Bucket, status Status) (int, error)
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the Jobfeed API (e.g., "http://localhost:8080").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is the HTTP client for the Jobfeed record API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Remote = (*Client)(nil)

// NewClient creates a Client for the record API at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("feed: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("feed: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption
// to force subsequent requests onto fresh TCP connections instead of
// a poisoned pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Query fetches one page of records. Records that fail validation are
// dropped and logged rather than poisoning the engine state; a
// response that does not parse at all is a permanent error.
func (c *Client) Query(ctx context.Context, bucket Bucket, limit, offset int, query string) (*QueryResult, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("feed: unknown bucket %q", bucket)
	}

	params := url.Values{}
	params.Set("bucket", string(bucket))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if query != "" {
		params.Set("q", query)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/v1/records", nil, params)
	if err != nil {
		return nil, fmt.Errorf("feed: query %s failed: %w", bucket, err)
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("feed: failed to parse query response: %w", err)
	}
	if result.Records == nil {
		return nil, fmt.Errorf("feed: query response missing records list")
	}

	valid := result.Records[:0]
	for _, record := range result.Records {
		if err := record.Validate(); err != nil {
			c.logger.Warn("dropping malformed record from query response", "error", err)
			continue
		}
		valid = append(valid, record)
	}
	result.Records = valid

	return &result, nil
}

// SetStatus persists a single record's status change.
func (c *Client) SetStatus(ctx context.Context, id string, status Status) error {
	if id == "" {
		return fmt.Errorf("feed: record id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("feed: unknown status %q", status)
	}

	request := map[string]any{"status": status}
	path := "/v1/records/" + url.PathEscape(id) + "/status"
	if _, err := c.doRequest(ctx, http.MethodPut, path, request, nil); err != nil {
		return fmt.Errorf("feed: set status %s=%s failed: %w", id, status, err)
	}
	return nil
}

// SetStatusBulk applies a status to every record currently in the
// bucket, in one request. Returns the number of records updated.
func (c *Client) SetStatusBulk(ctx context.Context, bucket Bucket, status Status) (int, error) {
	if !bucket.Valid() {
		return 0, fmt.Errorf("feed: unknown bucket %q", bucket)
	}
	if !status.Valid() {
		return 0, fmt.Errorf("feed: unknown status %q", status)
	}

	request := map[string]any{"bucket": bucket, "status": status}
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/records/status", request, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: bulk status %s=%s failed: %w", bucket, status, err)
	}

	var response struct {
		Updated int `json:"updated"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("feed: failed to parse bulk status response: %w", err)
	}
	return response.Updated, nil
}

// doRequest performs an HTTP request against the API and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns an
// *APIError. query may be nil for endpoints without parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("feed: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("feed: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		// Unwrap so a cancelled request classifies as cancellation,
		// not as a transient URL error.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("feed: request to %s %s: %w", method, path, ctx.Err())
		}
		return nil, fmt.Errorf("feed: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("feed: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All API error responses use the same JSON shape.
	var apiErr APIError
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Code == "" {
		// Server returned a non-JSON error. Should not happen with a
		// conforming server, but fail loud with the raw body.
		return nil, &APIError{
			Code:       ErrCodeInternal,
			Message:    fmt.Sprintf("unexpected %d response from %s %s: %s", response.StatusCode, method, path, string(responseBody)),
			StatusCode: response.StatusCode,
		}
	}
	apiErr.StatusCode = response.StatusCode

	return nil, &apiErr
}
