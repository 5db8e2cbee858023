// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package peersync keeps concurrently open editors of the same document
// informed of each other's state.
//
// Delivery is best effort: each message reaches the peers that are open
// at the time at most once, in no particular order, and is never replayed
// for peers that open later. A received document always replaces the
// receiver's view entirely.
package peersync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/viewport"
)

// Transport moves messages between peers. Implementations need not filter
// by document, origin or sender.
type Transport interface {
	Publish(ctx context.Context, msg Message) error

	// Subscribe registers handler for every message the transport
	// receives. Handlers may be called concurrently. The returned function
	// removes the subscription.
	Subscribe(handler func(Message)) (cancel func())
}

// Handler receives messages from other peers.
type Handler func(Message)

// Channel publishes and receives the messages of one document, within one
// origin, over a [Transport].
type Channel struct {
	transport Transport
	document  string
	origin    string
	sender    string
	logger    hclog.Logger

	mu       sync.RWMutex
	handlers map[uint64]Handler
	next     uint64

	unsubscribe func()
}

// NewChannel returns a channel for document within origin. The channel
// stays subscribed to the transport until [Channel.Close].
func NewChannel(t Transport, document, origin string) *Channel {
	c := &Channel{
		transport: t,
		document:  document,
		origin:    origin,
		sender:    uuid.NewString(),
		logger:    logging.NewLogger(nil, "peersync"),
		handlers:  make(map[uint64]Handler),
	}
	c.unsubscribe = t.Subscribe(c.receive)
	return c
}

// Sender returns the identifier this channel puts on its messages.
func (c *Channel) Sender() string {
	return c.sender
}

// BroadcastFull sends doc to every other open peer.
func (c *Channel) BroadcastFull(ctx context.Context, doc *mapdoc.Document) error {
	if doc == nil {
		return fmt.Errorf("cannot broadcast a nil document")
	}
	return c.publish(ctx, Message{Kind: KindFull, Full: doc})
}

// BroadcastViewport sends the world rectangle this editor is showing.
func (c *Channel) BroadcastViewport(ctx context.Context, rect viewport.Rect) error {
	return c.publish(ctx, Message{Kind: KindViewport, Viewport: &rect})
}

func (c *Channel) publish(ctx context.Context, msg Message) error {
	msg.Document = c.document
	msg.Origin = c.origin
	msg.Sender = c.sender
	if err := c.transport.Publish(ctx, msg); err != nil {
		return fmt.Errorf("broadcasting %s message: %w", msg.Kind, err)
	}
	return nil
}

// OnReceive registers handler for messages from other peers of the same
// document and origin. The returned function unregisters it.
func (c *Channel) OnReceive(handler Handler) (cancel func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.handlers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Close detaches the channel from its transport. No handler is called
// after Close returns, except those already running.
func (c *Channel) Close() {
	c.unsubscribe()
	c.mu.Lock()
	clear(c.handlers)
	c.mu.Unlock()
}

func (c *Channel) receive(msg Message) {
	if msg.Document != c.document || msg.Origin != c.origin || msg.Sender == c.sender {
		return
	}
	switch msg.Kind {
	case KindFull:
		if msg.Full == nil {
			c.logger.Debug("dropping full message without a document", "sender", msg.Sender)
			return
		}
	case KindViewport:
		if msg.Viewport == nil {
			c.logger.Debug("dropping viewport message without a rectangle", "sender", msg.Sender)
			return
		}
	default:
		c.logger.Debug("dropping message of unknown kind", "kind", msg.Kind)
		return
	}

	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
