// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package peersync

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/mapsync/internal/logging"
)

const (
	// writeWait bounds each write to a subscriber. A subscriber that cannot
	// keep up is disconnected rather than allowed to stall the others.
	writeWait = 10 * time.Second

	// maxMessageSize bounds a single peer message, which may carry a whole
	// document.
	maxMessageSize = 64 << 20
)

// Relay is an [http.Handler] that fans websocket messages out to every
// other connection open on the same document from the same origin.
//
// Clients connect with a "document" query parameter. Browser connections
// must come from the relay's own origin or one of AllowedOrigins.
type Relay struct {
	AllowedOrigins []string

	upgrader websocket.Upgrader
	logger   hclog.Logger

	mu    sync.Mutex
	rooms map[roomKey]map[*subscriber]struct{}
}

type roomKey struct {
	document string
	origin   string
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// NewRelay returns a relay that also accepts browser connections from the
// given origins.
func NewRelay(allowedOrigins ...string) *Relay {
	r := &Relay{
		AllowedOrigins: allowedOrigins,
		logger:         logging.NewLogger(nil, "relay"),
		rooms:          make(map[roomKey]map[*subscriber]struct{}),
	}
	r.upgrader = websocket.Upgrader{CheckOrigin: r.checkOrigin}
	return r
}

func (r *Relay) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(r.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, req.Host)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	document := req.URL.Query().Get("document")
	if document == "" {
		http.Error(w, "missing document parameter", http.StatusBadRequest)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the error response.
		r.logger.Debug("rejected peer connection", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	key := roomKey{document: document, origin: req.Header.Get("Origin")}
	sub := &subscriber{conn: conn}
	r.join(key, sub)
	defer func() {
		r.leave(key, sub)
		conn.Close()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("peer connection ended", "document", document, "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var head struct {
			Document string `json:"document"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.Document != document {
			r.logger.Debug("dropping message for another document", "document", document)
			continue
		}
		r.broadcast(key, sub, data)
	}
}

func (r *Relay) join(key roomKey, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		room = make(map[*subscriber]struct{})
		r.rooms[key] = room
	}
	room[sub] = struct{}{}
}

func (r *Relay) leave(key roomKey, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[key]
	delete(room, sub)
	if len(room) == 0 {
		delete(r.rooms, key)
	}
}

func (r *Relay) broadcast(key roomKey, from *subscriber, data []byte) {
	r.mu.Lock()
	subs := make([]*subscriber, 0, len(r.rooms[key]))
	for sub := range r.rooms[key] {
		if sub != from {
			subs = append(subs, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			r.logger.Debug("dropping peer after failed write", "document", key.document, "error", err)
			r.leave(key, sub)
			sub.conn.Close()
		}
	}
}

// Peers returns the number of connections open on document, across all
// origins.
func (r *Relay) Peers(document string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, room := range r.rooms {
		if key.document == document {
			n += len(room)
		}
	}
	return n
}
