// Package hub pushes applied engine events to browser dashboards over
// websockets.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
)

const (
	defaultSendBuffer = 64
	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
)

// ClientsRecorder observes the number of connected dashboards.
type ClientsRecorder interface {
	SetPushClients(n int)
}

// Option customises a Hub.
type Option func(*Hub)

// WithClientsRecorder attaches an optional gauge for connected clients.
func WithClientsRecorder(r ClientsRecorder) Option {
	return func(h *Hub) { h.recorder = r }
}

// WithSendBuffer sets how many messages may queue per client before new
// ones are dropped for it.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingPeriod sets the keep-alive interval.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// WithCheckOrigin overrides the upgrader's origin check. The default
// accepts any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans applied events out to every connected websocket.
type Hub struct {
	log        logging.Logger
	recorder   ClientsRecorder
	upgrader   websocket.Upgrader
	sendBuffer int
	writeWait  time.Duration
	pingPeriod time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// New returns an empty hub.
func New(log logging.Logger, opts ...Option) *Hub {
	h := &Hub{
		log: logging.OrNoop(log).With(logging.Component("hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
		writeWait:  defaultWriteWait,
		pingPeriod: defaultPingPeriod,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Clients returns the number of connected dashboards.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish queues note for every client without blocking; it is safe to call
// from the engine loop.
func (h *Hub) Publish(note events.Applied) {
	data, err := json.Marshal(note)
	if err != nil {
		h.log.Warn(context.Background(), "marshal applied event", logging.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.log.Debug(context.Background(), "client is slow, skipping message",
				logging.String("client", c.id),
				logging.Int("seq", int(note.Seq)),
			)
		}
	}
}

// ServeHTTP upgrades the request and streams applied events until either
// side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, h.log)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Debug(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeWait))
		_ = conn.Close()
		return
	}
	log.Info(ctx, "dashboard connected", logging.String("client", c.id), logging.Int("clients", h.Clients()))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.readLoop(c)
	}()
	h.writeLoop(c)

	h.unregister(c)
	_ = conn.Close()
	log.Info(ctx, "dashboard disconnected", logging.String("client", c.id), logging.Int("clients", h.Clients()))
}

// readLoop discards inbound frames so control messages are processed and a
// closed connection is noticed.
func (h *Hub) readLoop(c *client) {
	defer c.stop()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				c.stop()
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
}

func (h *Hub) report(n int) {
	if h.recorder != nil {
		h.recorder.SetPushClients(n)
	}
}

// Close sends a going-away frame to every client, disconnects them and
// refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(h.writeWait)
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		c.stop()
		_ = c.conn.Close()
	}
	h.wg.Wait()
}
