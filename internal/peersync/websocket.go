// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package peersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/mapsync/internal/logging"
)

// WebSocketTransport is a [Transport] connected to a [Relay].
type WebSocketTransport struct {
	conn   *websocket.Conn
	logger hclog.Logger

	writeMu sync.Mutex

	mu   sync.RWMutex
	subs map[uint64]func(Message)
	next uint64

	done chan struct{}
}

var _ Transport = (*WebSocketTransport)(nil)

// Dial connects to the relay at relayURL for document. An http or https
// URL is converted to its websocket equivalent. If origin is not empty it
// is sent as the Origin header, and the relay only connects this transport
// to peers that sent the same one.
func Dial(ctx context.Context, relayURL, document, origin string) (*WebSocketTransport, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("relay URL must use ws, wss, http or https, not %q", u.Scheme)
	}
	q := u.Query()
	q.Set("document", document)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting to relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connecting to relay: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	t := &WebSocketTransport{
		conn:   conn,
		logger: logging.NewLogger(nil, "peersync"),
		subs:   make(map[uint64]func(Message)),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *WebSocketTransport) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) Subscribe(handler func(Message)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.subs[id] = handler

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Done is closed when the connection to the relay has ended.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// Close says goodbye to the relay and waits for the connection to end.
func (t *WebSocketTransport) Close() error {
	t.writeMu.Lock()
	err := t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	select {
	case <-t.done:
	case <-time.After(time.Second):
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	return errors.Join(err, t.conn.Close())
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.done)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("lost connection to relay", "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Debug("dropping undecodable peer message", "error", err)
			continue
		}

		t.mu.RLock()
		subs := make([]func(Message), 0, len(t.subs))
		for _, h := range t.subs {
			subs = append(subs, h)
		}
		t.mu.RUnlock()

		for _, h := range subs {
			h(msg)
		}
	}
}
