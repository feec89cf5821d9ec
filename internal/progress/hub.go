// Package progress pushes import progress to websocket subscribers.
package progress

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// EventType tells subscribers how to read an Event.
type EventType string

// Event types. Progress events may be dropped under throttling; the others never are.
const (
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventFailed   EventType = "failed"
)

// Event is one message sent to every subscriber.
type Event struct {
	Type     EventType            `json:"type"`
	ImportID string               `json:"importId"`
	FileName string               `json:"fileName,omitempty"`
	Progress *model.Progress      `json:"progress,omitempty"`
	Summary  *model.ImportSummary `json:"summary,omitempty"`
	Error    string               `json:"error,omitempty"`
}

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Publisher receives import events. A nil Publisher is never passed around; use Discard.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

type client struct {
	conn    *websocket.Conn
	send    chan Event
	limiter *rate.Limiter
}

// Hub fans events out to websocket clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	limit    rate.Limit
	burst    int
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates a hub that forwards at most limit progress events per second (with burst)
// to each subscriber.
// allowedOrigins lists the browser origins allowed to subscribe; "*" allows any.
func NewHub(limit rate.Limit, burst int, allowedOrigins []string, log zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		limit:   limit,
		burst:   burst,
		log:     log.With().Str("component", "progress_hub").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Publish delivers e to every subscriber without blocking. Progress events beyond a
// subscriber's rate are dropped for that subscriber only. A subscriber too slow to take a
// final event is disconnected.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if e.Type == EventProgress && !c.limiter.Allow() {
			continue
		}
		select {
		case c.send <- e:
		default:
			if e.Type != EventProgress {
				h.log.Warn().Msg("subscriber too slow, disconnecting")
				h.removeLocked(c)
			}
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, sendBuffer), limiter: rate.NewLimiter(h.limit, h.burst)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Int("subscribers", h.Subscribers()).Msg("subscriber connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readLoop discards client messages; it returns when the connection closes.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for e := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(e); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}
