// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stream carries pipeline events from producer to consumer: an
// in-process Channel with blocking hand-off, a server-sent events Writer
// for HTTP responses, and an incremental Reader for the client side.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event kinds.
const (
	EventStage    = "stage"
	EventComplete = "complete"
	EventError    = "error"
)

var (
	// ErrClosed is returned when sending after the stream has ended.
	ErrClosed = errors.New("stream closed")

	// ErrWriteFailed wraps a failed write to the underlying connection.
	// A run treats it as client cancellation.
	ErrWriteFailed = errors.New("stream write failed")
)

// Message is one named event with a JSON payload.
type Message struct {
	Event string
	Data  json.RawMessage
}

// Terminal reports whether m ends a stream.
func (m Message) Terminal() bool {
	return m.Event == EventComplete || m.Event == EventError
}

// NewMessage marshals payload into a Message of the given kind.
func NewMessage(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// CompletePayload is the body of a complete event. Report is kept raw so
// this package does not depend on the report types.
type CompletePayload struct {
	Success bool            `json:"success"`
	RunID   string          `json:"runId,omitempty"`
	Report  json.RawMessage `json:"report"`
}
