// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// defaultEvent is the kind assigned to messages without an event line.
const defaultEvent = "message"

// Reader parses server-sent events incrementally. Network reads may split
// or coalesce messages arbitrarily; a message is returned only once its
// terminating blank line has arrived.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next blocks until a complete message is available. It returns io.EOF at a
// clean end of stream and io.ErrUnexpectedEOF if the stream ends inside a
// message. Comment lines and unknown fields are ignored.
func (r *Reader) Next() (Message, error) {
	var (
		event   string
		data    bytes.Buffer
		hasData bool
		started bool
	)

	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) && started {
				return Message{}, io.ErrUnexpectedEOF
			}
			return Message{}, err
		}
		atEOF := err != nil

		line = strings.TrimRight(line, "\r\n")

		if line == "" && !atEOF {
			if !hasData {
				// Blank line with no data resets the event per SSE rules.
				event, started = "", false
				continue
			}
			if event == "" {
				event = defaultEvent
			}
			return Message{Event: event, Data: data.Bytes()}, nil
		}

		if line != "" {
			started = true
			field, value := splitField(line)
			switch field {
			case "event":
				event = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}

		if atEOF {
			return Message{}, io.ErrUnexpectedEOF
		}
	}
}

// splitField splits "field: value". A leading colon marks a comment and
// yields an empty field.
func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
