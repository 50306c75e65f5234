package mapfeed

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/geotag/photomap/pkg/core"
	"github.com/geotag/photomap/pkg/streaming"
)

const (
	sendChSize = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// ErrClosed is returned by a closed hub.
var ErrClosed = errors.New("feed hub closed")

// Hub fans collection snapshots out to websocket clients. A client only
// receives snapshots after it subscribes, and always gets the latest one
// first.
type Hub struct {
	collection string
	metrics    *Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	latest  []byte
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub for collection.
func NewHub(collection string, metrics *Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		collection: collection,
		metrics:    metrics,
		logger:     logger,
		clients:    make(map[*client]struct{}),
	}
}

// Refresh encodes the records returned by current and offers them to every
// subscribed client. current runs under the hub lock, so concurrent
// refreshes never publish an older sequence after a newer one.
func (h *Hub) Refresh(current func() []core.PhotoRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	data, err := streaming.Marshal(streaming.TypeSnapshot, streaming.NewSnapshot(h.collection, current()))
	if err != nil {
		return err
	}
	h.latest = data
	h.metrics.Broadcasts.Inc()

	for c := range h.clients {
		if c.subscribed {
			c.offer(data)
		}
	}
	return nil
}

// Clients returns the number of subscribed clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.subscribed {
			n++
		}
	}
	return n
}

// Serve runs conn until it fails or the hub closes.
func (h *Hub) Serve(conn *ws.Conn) {
	defer conn.Close()

	c := &client{
		hub:     h,
		conn:    conn,
		sendCh:  make(chan []byte, sendChSize),
		mailbox: make(chan []byte, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeWith(ws.CloseGoingAway, "server shutting down")
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	c.readLoop()
	h.remove(c)
}

func (h *Hub) subscribe(c *client, p streaming.SubscribePayload) bool {
	if p.Collection != "" && p.Collection != h.collection {
		return false
	}
	ack, err := streaming.MarshalAck(streaming.TypeSubscribe)
	if err != nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	if !c.subscribed {
		c.subscribed = true
		h.metrics.Clients.Inc()
	}
	// ack is queued before the snapshot; the write loop drains sendCh first
	c.send(ack)
	if h.latest != nil {
		c.offer(h.latest)
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		if c.subscribed {
			h.metrics.Clients.Dec()
		}
	}
	h.mu.Unlock()
	c.stop()
}

// Close disconnects every client. Later Serve calls are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		if c.subscribed {
			h.metrics.Clients.Dec()
		}
		c.stop()
		c.closeWith(ws.CloseGoingAway, "server shutting down")
		_ = c.conn.Close()
	}
}

// client is one websocket connection with a single write goroutine.
type client struct {
	hub     *Hub
	conn    *ws.Conn
	sendCh  chan []byte
	mailbox chan []byte
	done    chan struct{}
	once    sync.Once

	// guarded by hub.mu
	subscribed bool
}

// send queues a control message. Non-blocking; drops if the channel is full.
func (c *client) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.hub.logger.Warn("Feed send channel full, dropping message")
	}
}

// offer replaces any undelivered snapshot with data.
func (c *client) offer(data []byte) {
	for {
		select {
		case c.mailbox <- data:
			return
		default:
		}
		select {
		case <-c.mailbox:
			c.hub.metrics.Coalesced.Inc()
		default:
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			if !c.write(ws.TextMessage, data) {
				return
			}
			continue
		default:
		}

		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if !c.write(ws.TextMessage, data) {
				return
			}
		case data := <-c.mailbox:
			if !c.write(ws.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !c.write(ws.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *client) write(kind int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.logger.Debug("Feed SetWriteDeadline error", "error", err)
		_ = c.conn.Close()
		return false
	}
	if err := c.conn.WriteMessage(kind, data); err != nil {
		c.hub.logger.Debug("Feed write error", "error", err)
		_ = c.conn.Close()
		return false
	}
	return true
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.hub.logger.Debug("Feed read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Debug("Malformed feed message", "raw", string(message))
			continue
		}

		switch env.Type {
		case streaming.TypeSubscribe:
			var p streaming.SubscribePayload
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					c.hub.logger.Debug("Malformed subscribe payload", "error", err)
					continue
				}
			}
			if !c.hub.subscribe(c, p) {
				c.hub.logger.Warn("Feed subscribe rejected", "collection", p.Collection)
				c.closeWith(ws.ClosePolicyViolation, "unknown collection")
				return
			}
		default:
			c.hub.logger.Debug("Unhandled feed message", "type", env.Type)
		}
	}
}

func (c *client) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}
