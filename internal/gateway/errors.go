// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by Invoke or Decode matches exactly one
// of these with errors.Is, except context cancellation, which is returned
// as the context's own error.
var (
	ErrRateLimited         = errors.New("inference gateway rate limited")
	ErrQuotaExhausted      = errors.New("inference gateway quota exhausted")
	ErrUpstreamUnavailable = errors.New("inference gateway unavailable")
	ErrSchemaViolation     = errors.New("inference response violates schema")
	ErrTimeout             = errors.New("inference gateway timed out")
)

// ErrMissingCredential is returned by New when no API key is configured.
var ErrMissingCredential = errors.New("inference gateway API key is not configured")

// Error describes a failed gateway call.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Tool is the function the call was forced to use.
	Tool string

	// Status is the upstream HTTP status, or 0 if no response was received.
	Status int

	// Detail is a short description or a truncated upstream body.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// statusKind maps a non-2xx HTTP status to a failure kind.
func statusKind(status int) error {
	switch status {
	case 429:
		return ErrRateLimited
	case 402:
		return ErrQuotaExhausted
	default:
		return ErrUpstreamUnavailable
	}
}
