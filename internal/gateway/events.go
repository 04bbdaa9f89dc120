package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/sweep/internal/recurring"
)

const eventWriteTimeout = 5 * time.Second

// eventHub streams runner events to WebSocket clients. Each client has a
// bounded queue; events for a slow client are dropped, never blocking the
// runner.
type eventHub struct {
	buffer int
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	ch      chan recurring.Event
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Compile-time interface check.
var _ recurring.Observer = (*eventHub)(nil)

func newEventHub(buffer int, logger *slog.Logger) *eventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &eventHub{
		buffer:  buffer,
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

// Observe implements recurring.Observer.
func (h *eventHub) Observe(ev recurring.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- ev:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *eventHub) add() (*eventClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &eventClient{
		ch:   make(chan recurring.Event, h.buffer),
		done: make(chan struct{}),
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *eventHub) remove(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// len returns the number of connected clients.
func (h *eventHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll disconnects every client and refuses new ones.
func (h *eventHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*eventClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeHTTP upgrades the request and streams events as JSON text messages
// until the client disconnects or the hub closes.
func (h *eventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("gateway: websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	client, ok := h.add()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(client)

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("gateway: event stream opened", "remote_addr", r.RemoteAddr)

	for {
		select {
		case ev := <-client.ch:
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("gateway: event stream write failed", "error", err)
				return
			}
		case <-client.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ctx.Done():
			if n := client.dropped.Load(); n > 0 {
				h.logger.Debug("gateway: event stream closed", "dropped", n)
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev recurring.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
