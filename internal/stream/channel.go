// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stream

import (
	"context"
	"sync"
)

// Channel is an unbuffered single-producer, single-consumer event queue.
// Send blocks until the consumer takes the message, so a slow consumer
// slows the producer instead of growing a buffer.
//
// The producer must call Close when done. The consumer calls Abandon when
// it stops reading; blocked and later Sends then fail with ErrClosed.
type Channel struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once

	mu       sync.Mutex
	terminal bool
}

// NewChannel returns an open Channel.
func NewChannel() *Channel {
	return &Channel{
		ch:   make(chan Message),
		done: make(chan struct{}),
	}
}

// Send hands msg to the consumer. After a terminal message has been sent,
// further sends fail with ErrClosed.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return ErrClosed
	}
	if msg.Terminal() {
		c.terminal = true
	}
	c.mu.Unlock()

	select {
	case c.ch <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the receive side. It is closed after Close.
func (c *Channel) Messages() <-chan Message {
	return c.ch
}

// Close ends the stream from the producer side. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.ch) })
}

// Abandon tells the producer the consumer has stopped reading. Safe to call
// more than once.
func (c *Channel) Abandon() {
	c.doneOnce.Do(func() { close(c.done) })
}
