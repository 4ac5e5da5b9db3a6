/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Broadcaster exposes a live read-only feed of orchestrator Totals over a
// websocket, adapted from scm/network.go's upgrade-then-read-loop handler:
// every connection gets its own recover-wrapped read loop (here only used
// to detect disconnect, since this feed is publish-only) and every send is
// serialized through the same mutex the teacher's "websocket" scheme
// function guards its send callback with.
type Broadcaster struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewBroadcaster builds a Broadcaster. Mount it at an HTTP path and call
// Publish after each topic completes (or on a ticker) to push Snapshot
// updates to every connected client.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection until it closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("orchestrator: websocket upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("orchestrator: panic in websocket read loop", zap.Any("recover", r))
		}
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	// Read loop exists only to detect client disconnect/close frames; this
	// feed never accepts input from the client.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish sends snap as JSON to every connected client, dropping (and
// unregistering) any connection whose write fails.
func (b *Broadcaster) Publish(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.log.Warn("orchestrator: status marshal failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(b.clients, conn)
			conn.Close()
		}
	}
}

// Close disconnects every client. Safe to call once at shutdown.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for conn := range b.clients {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orchestrator: closing websocket client: %w", err)
		}
		delete(b.clients, conn)
	}
	return firstErr
}
