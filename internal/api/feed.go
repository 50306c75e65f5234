package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/geotag/photomap/pkg/streaming"
)

const (
	sendChSize     = 16
	ackChSize      = 16
	maxReconnect   = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	ackTimeout     = 10 * time.Second
)

// Feed is a live subscription to the server's collection feed. It
// reconnects with exponential backoff and resubscribes after every dial.
type Feed struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL   string
	backoff time.Duration

	// subscribe message replayed on reconnect
	subscribeMsg []byte

	onSnapshot func(streaming.SnapshotPayload)
	logger     *slog.Logger
}

// FeedURL turns the client's base URL into the websocket feed URL.
func (c *Client) FeedURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/feed"
	return u.String(), nil
}

// Subscribe dials the feed and waits for the server to acknowledge the
// subscription. onSnapshot runs on the read goroutine for every snapshot.
func (c *Client) Subscribe(ctx context.Context, collection string, onSnapshot func(streaming.SnapshotPayload), logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wsURL, err := c.FeedURL()
	if err != nil {
		return nil, err
	}
	msg, err := streaming.Marshal(streaming.TypeSubscribe, streaming.SubscribePayload{Collection: collection})
	if err != nil {
		return nil, err
	}

	f := newFeed(wsURL, onSnapshot, logger)
	f.subscribeMsg = msg
	if c.feedBackoff > 0 {
		f.backoff = c.feedBackoff
	}
	if err := f.dial(ctx); err != nil {
		return nil, err
	}
	if err := f.sendAndWait(msg, streaming.TypeSubscribe, ackTimeout); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func newFeed(wsURL string, onSnapshot func(streaming.SnapshotPayload), logger *slog.Logger) *Feed {
	if onSnapshot == nil {
		onSnapshot = func(streaming.SnapshotPayload) {}
	}
	return &Feed{
		sendCh:     make(chan []byte, sendChSize),
		ackCh:      make(chan streaming.AckMessage, ackChSize),
		done:       make(chan struct{}),
		wsURL:      wsURL,
		backoff:    initialBackoff,
		onSnapshot: onSnapshot,
		logger:     logger,
	}
}

// dial connects to the feed and starts the read and write loops.
func (f *Feed) dial(ctx context.Context) error {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	go f.writeLoop(conn)
	go f.readLoop(conn)
	return nil
}

// writeLoop drains sendCh onto conn. It returns on error or shutdown.
func (f *Feed) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-f.done:
			return
		case data := <-f.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				f.logger.Warn("Feed SetWriteDeadline error", "error", err)
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				f.logger.Warn("Feed write error", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and snapshots to onSnapshot. A read error
// hands over to reconnect.
func (f *Feed) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			if ws.IsCloseError(err, ws.ClosePolicyViolation) {
				f.logger.Error("Feed subscription rejected", "error", err)
				_ = f.Close()
				return
			}
			f.logger.Warn("Feed read error", "error", err)
			go f.reconnect(conn)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.logger.Debug("Malformed feed message", "raw", string(message))
			continue
		}

		switch env.Type {
		case streaming.TypeAck:
			var ack streaming.AckMessage
			if err := json.Unmarshal(message, &ack); err != nil {
				continue
			}
			select {
			case f.ackCh <- ack:
			default:
				f.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
		case streaming.TypeSnapshot:
			var snap streaming.SnapshotPayload
			if err := json.Unmarshal(env.Payload, &snap); err != nil {
				f.logger.Debug("Malformed snapshot", "error", err)
				continue
			}
			f.onSnapshot(snap)
		default:
			f.logger.Debug("Unhandled feed message", "type", env.Type)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff and
// replays the subscribe message.
func (f *Feed) reconnect(old *ws.Conn) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.conn == old {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()

	backoff := f.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		f.logger.Info("Reconnecting to feed", "attempt", attempt, "backoff", backoff)
		select {
		case <-f.done:
			return
		case <-time.After(backoff):
		}

		conn, _, err := ws.DefaultDialer.Dial(f.wsURL, nil)
		if err != nil {
			f.logger.Warn("Feed reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			_ = conn.Close()
			continue
		}
		if err := conn.WriteMessage(ws.TextMessage, f.subscribeMsg); err != nil {
			f.logger.Warn("Failed to resubscribe after reconnect", "error", err)
			_ = conn.Close()
			continue
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
		f.conn = conn
		f.mu.Unlock()

		f.logger.Info("Feed reconnected", "attempt", attempt)
		go f.writeLoop(conn)
		go f.readLoop(conn)
		return
	}

	f.logger.Error("Feed reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (f *Feed) send(data []byte) {
	select {
	case f.sendCh <- data:
	default:
		f.logger.Warn("Feed send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the server acknowledges with a
// matching ack message or the timeout expires.
func (f *Feed) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	f.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-f.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-f.done:
			return fmt.Errorf("feed closed while waiting for ack of %q", ackFor)
		}
	}
}

// Close sends a close frame and stops all goroutines.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
