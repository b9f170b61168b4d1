package collab

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status is the channel's connectivity from the client's perspective.
// Connectivity is binary in effect: it drives a UI indicator and whether
// edits broadcast live; debounced persistence works regardless.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const reconnectDelay = time.Second

// Channel is the relay connection for one receipt session. If the
// transport drops it re-establishes itself (fresh handshake, fresh
// connected acknowledgement) without refetching the document.
type Channel struct {
	url       string
	onMessage func(Envelope)
	onStatus  func(Status)

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	closed bool
}

// NewChannel prepares a relay channel for the given receipt. baseURL is
// the websocket endpoint (e.g. ws://host/api/websocket); the receipt id
// is carried as the handshake query parameter.
func NewChannel(baseURL, receiptID string, onMessage func(Envelope)) *Channel {
	query := url.Values{"receiptId": {receiptID}}
	return &Channel{
		url:       baseURL + "?" + query.Encode(),
		onMessage: onMessage,
	}
}

// OnStatus registers a connectivity callback. Call before Connect.
func (ch *Channel) OnStatus(fn func(Status)) {
	ch.onStatus = fn
}

// Connect dials the relay and waits for the connected acknowledgement,
// then starts the read loop. A handshake failure returns the channel to
// disconnected.
func (ch *Channel) Connect() error {
	ch.setStatus(StatusConnecting)

	conn, err := ch.dial()
	if err != nil {
		ch.setStatus(StatusDisconnected)
		return err
	}

	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()
	ch.setStatus(StatusConnected)

	go ch.readLoop(conn)
	return nil
}

// dial opens the websocket and consumes the connected acknowledgement.
func (ch *Channel) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(ch.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	var ack Envelope
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read relay acknowledgement: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Type != "connected" {
		conn.Close()
		return nil, fmt.Errorf("unexpected relay handshake message %q", ack.Type)
	}

	return conn, nil
}

// readLoop dispatches incoming envelopes until the transport errors, then
// drives reconnection unless the channel was closed.
func (ch *Channel) readLoop(conn *websocket.Conn) {
	for {
		var envelope Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			conn.Close()
			ch.setStatus(StatusDisconnected)
			ch.reconnect()
			return
		}
		if ch.onMessage != nil {
			ch.onMessage(envelope)
		}
	}
}

// reconnect re-dials until it succeeds or the channel is closed. Each
// attempt is a full fresh handshake.
func (ch *Channel) reconnect() {
	for {
		ch.mu.Lock()
		closed := ch.closed
		ch.mu.Unlock()
		if closed {
			return
		}

		time.Sleep(reconnectDelay)
		ch.setStatus(StatusConnecting)

		conn, err := ch.dial()
		if err != nil {
			slog.Debug("Relay reconnect failed", "error", err)
			ch.setStatus(StatusDisconnected)
			continue
		}

		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			conn.Close()
			return
		}
		ch.conn = conn
		ch.mu.Unlock()
		ch.setStatus(StatusConnected)

		go ch.readLoop(conn)
		return
	}
}

// Send transmits an envelope. It fails when the channel is not connected;
// nothing is queued.
func (ch *Channel) Send(envelope Envelope) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.status != StatusConnected || ch.conn == nil {
		return fmt.Errorf("relay channel is %s", ch.status)
	}
	ch.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ch.conn.WriteJSON(envelope)
}

// Status returns the current connectivity.
func (ch *Channel) Status() Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

// Close shuts the channel down permanently; no reconnect follows.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	conn := ch.conn
	ch.conn = nil
	ch.mu.Unlock()

	ch.setStatus(StatusDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (ch *Channel) setStatus(status Status) {
	ch.mu.Lock()
	changed := ch.status != status
	ch.status = status
	fn := ch.onStatus
	ch.mu.Unlock()

	if changed && fn != nil {
		fn(status)
	}
}
