// Package relay implements the realtime fan-out broker: every message
// received from one connection is rebroadcast to every other connection
// registered under the same receipt id. The relay never interprets message
// content; it only stamps a server timestamp onto each well-formed message.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabsync/tabsync/internal/metrics"
)

const (
	// pingInterval is how often each connection is probed with a
	// keep-alive frame.
	pingInterval = 30 * time.Second

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

// Hub groups open websocket connections by receipt id and rebroadcasts
// messages within each group. The group mapping is the only state shared
// across connection handlers and is guarded by the hub mutex.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	groups map[string]map[*connection]struct{}
}

// connection wraps a websocket with a write lock; gorilla permits only one
// concurrent writer per connection.
type connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *connection) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// Share links are opened from arbitrary origins; the access
			// token, not the origin, is the credential.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		groups: make(map[string]map[*connection]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and runs the connection
// until it closes. The receiptId query parameter is required; without it
// the handshake fails with close code 1008.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	receiptID := r.URL.Query().Get("receiptId")
	if receiptID == "" {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Receipt ID is required"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	conn := &connection{ws: ws}
	h.add(receiptID, conn)
	slog.Info("Websocket connected", "receipt_id", receiptID, "remote_addr", r.RemoteAddr)

	// Immediate acknowledgement so the client knows the group join took.
	if err := conn.writeJSON(map[string]any{
		"type":      "connected",
		"receiptId": receiptID,
		"timestamp": timestamp(),
	}); err != nil {
		slog.Warn("Failed to send connected ack", "receipt_id", receiptID, "error", err)
		h.remove(receiptID, conn)
		ws.Close()
		return
	}

	done := make(chan struct{})
	go h.keepAlive(conn, done)

	h.readLoop(receiptID, conn)

	close(done)
	h.remove(receiptID, conn)
	ws.Close()
	slog.Info("Websocket disconnected", "receipt_id", receiptID)
}

// readLoop relays messages until the transport errors or closes. A parse
// error in one message affects only that message.
func (h *Hub) readLoop(receiptID string, conn *connection) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Websocket read error", "receipt_id", receiptID, "error", err)
			}
			return
		}

		var message map[string]any
		if err := json.Unmarshal(data, &message); err != nil {
			slog.Error("Error processing websocket message", "receipt_id", receiptID, "error", err)
			metrics.RelayDropped.Inc()
			continue
		}

		message["timestamp"] = timestamp()
		h.broadcast(receiptID, conn, message)
	}
}

// broadcast sends the message to every group member except the sender.
// A write failure on one sibling never affects the others; the failing
// connection's own read loop drives its cleanup.
func (h *Hub) broadcast(receiptID string, sender *connection, message map[string]any) {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("Failed to encode broadcast", "receipt_id", receiptID, "error", err)
		return
	}

	h.mu.Lock()
	members := make([]*connection, 0, len(h.groups[receiptID]))
	for member := range h.groups[receiptID] {
		if member != sender {
			members = append(members, member)
		}
	}
	h.mu.Unlock()

	for _, member := range members {
		if err := member.writeRaw(data); err != nil {
			slog.Warn("Broadcast write failed", "receipt_id", receiptID, "error", err)
		}
	}
	if len(members) > 0 {
		metrics.RelayBroadcasts.Inc()
	}
}

// keepAlive probes the connection on a fixed interval. A failed ping is
// not acted on here; closure is driven by the transport's own signals.
func (h *Hub) keepAlive(conn *connection, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.mu.Lock()
			conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			conn.mu.Unlock()
		}
	}
}

func (h *Hub) add(receiptID string, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[receiptID]
	if !ok {
		group = make(map[*connection]struct{})
		h.groups[receiptID] = group
		metrics.RelayGroups.Inc()
	}
	group[conn] = struct{}{}
	metrics.RelayConnections.Inc()
}

// remove drops the connection from its group; an emptied group is deleted
// so abandoned receipts never accumulate state.
func (h *Hub) remove(receiptID string, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[receiptID]
	if !ok {
		return
	}
	if _, member := group[conn]; !member {
		return
	}
	delete(group, conn)
	metrics.RelayConnections.Dec()
	if len(group) == 0 {
		delete(h.groups, receiptID)
		metrics.RelayGroups.Dec()
	}
}

// GroupSize reports the number of open connections for a receipt.
func (h *Hub) GroupSize(receiptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[receiptID])
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
