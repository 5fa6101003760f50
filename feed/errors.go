// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a structured error response from the Jobfeed
// API. Callers can use errors.As to extract the structured
// information:
//
//	var apiErr *feed.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == feed.ErrCodeNotFound { ... }
//	}
type APIError struct {
	// Code is the machine-readable error code (e.g., "not_found").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard API error codes.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidParam  = "invalid_param"
	ErrCodeLimitExceeded = "limit_exceeded"
	ErrCodeInternal      = "internal"
)

// IsAPIError checks whether err is an *APIError with the given code.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// ErrorClass partitions failures by how the engine reacts to them.
type ErrorClass int

const (
	// ClassCancellation: the request was superseded or torn down.
	// Expected, silent, never surfaced to the user.
	ClassCancellation ErrorClass = iota
	// ClassTransient: network failure, 429, or 5xx. Worth retrying;
	// surfaced as a dismissible notice with a retry affordance.
	ClassTransient
	// ClassPermanent: malformed payload or a 4xx other than 429.
	// Not retryable; surfaced as an error state.
	ClassPermanent
)

// Classify maps an error from a fetch or mutation to its class.
// Cancellation is checked first: a cancelled request often surfaces
// as a wrapped context error, and treating it as transient would pop
// an error notice on every rapid query change.
func Classify(err error) ErrorClass {
	if IsCancellation(err) {
		return ClassCancellation
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ClassTransient
		case apiErr.StatusCode >= 500:
			return ClassTransient
		case apiErr.StatusCode >= 400:
			return ClassPermanent
		}
	}

	// Non-API errors (connection refused, timeout, EOF) are transient.
	return ClassTransient
}

// IsCancellation reports whether err is the expected result of the
// engine cancelling its own request (query superseded, teardown).
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}
