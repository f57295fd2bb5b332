package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

const sendBuffer = 32

// client is one websocket subscriber. Its send channel is bounded; a
// client that cannot keep up is dropped rather than slowing the hub.
type client struct {
	conn *websocket.Conn
	mu   sync.RWMutex
	tags map[string]struct{}
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) setTags(tags []string) {
	next := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t != "" {
			next[t] = struct{}{}
		}
	}
	c.mu.Lock()
	c.tags = next
	c.mu.Unlock()
}

func (c *client) wants(tags []string) bool {
	if len(tags) == 0 {
		return true // broadcast
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range tags {
		if _, ok := c.tags[t]; ok {
			return true
		}
	}
	return false
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// tagFrame is the only control message clients send: a full replacement
// of their tag subscription.
type tagFrame struct {
	Tags []string `json:"tags"`
}

// Hub relays broker events to websocket clients by tag intersection.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the connection and runs it until either side
// closes. Clients start with no tags and receive only broadcasts until
// they send a tag frame.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		tags: make(map[string]struct{}),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	obslog.L().Info("ws_client_connect", zap.Int("clients", h.Len()))

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)

	h.unregister(c)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_client_disconnect", zap.Int("clients", h.Len()))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var frame tagFrame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			c.stop()
			return
		}
		c.setTags(frame.Tags)
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				c.stop()
				return
			}
		}
	}
}

// Dispatch fans one event out to every interested client. Events with
// no tags reach everyone. Slow clients lose the event, never the hub.
func (h *Hub) Dispatch(ev chessdto.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		obslog.L().Warn("event_encode_error", zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev.Tags) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- raw:
		case <-c.done:
		default:
			obslog.L().Warn("ws_client_lagging", zap.String("signal", string(ev.Signal)))
		}
	}
}

// Run pumps a subscription into the hub until the feed or ctx ends.
func (h *Hub) Run(ctx context.Context, events <-chan chessdto.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Dispatch(ev)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Len reports the connected client count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
