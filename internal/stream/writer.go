// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stream

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Writer frames messages as server-sent events:
//
//	event: <kind>
//	data: <json>
//	<blank line>
//
// Each message is flushed immediately when the destination supports it.
type Writer struct {
	w     io.Writer
	flush func()
	ended bool
}

// NewWriter returns a Writer over w. If w is an http.Flusher, every message
// is flushed as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	return sw
}

// Write sends one message. Writing after a terminal message returns
// ErrClosed; a failed write returns an error wrapping ErrWriteFailed and the
// Writer must not be used again.
func (w *Writer) Write(msg Message) error {
	if w.ended {
		return ErrClosed
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", msg.Event)
	for _, line := range bytes.Split(msg.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		w.ended = true
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	w.flush()

	if msg.Terminal() {
		w.ended = true
	}
	return nil
}

// Ended reports whether a terminal message was written or a write failed.
func (w *Writer) Ended() bool {
	return w.ended
}
