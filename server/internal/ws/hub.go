package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focustrack/focustrack/pkg/types"
)

// Event names pushed to clients.
const (
	EventReportStored = "report.stored"
	EventHeartbeat    = "heartbeat"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are not checked; apply CORS at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Heartbeat is the payload of EventHeartbeat.
type Heartbeat struct {
	GeneratedAt string `json:"generated_at"`
	Clients     int    `json:"clients"`
}

// Hub manages WebSocket client connections. Published events fan out to
// every client; a heartbeat goes out every interval and on connect.
//
// A client that connects with learner, class_id and course_id query
// parameters only receives report events for that subject.
type Hub struct {
	interval time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client. subject is the
// SubjectRef.Key the client follows, or "" for every subject.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	subject string
}

func (c *client) wants(subject string) bool {
	return c.subject == "" || subject == "" || c.subject == subject
}

// New creates a Hub that sends a heartbeat every interval.
func New(interval time.Duration) *Hub {
	return &Hub{
		interval: interval,
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
}

// Publish sends an event to connected clients. A *types.SessionReport
// payload only reaches clients following its subject (or none). Clients whose
// buffer is full are disconnected.
func (h *Hub) Publish(event string, data interface{}) {
	msg, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		slog.Warn("ws: encode event", "event", event, "err", err)
		return
	}
	var subject string
	if r, ok := data.(*types.SessionReport); ok && r != nil {
		subject = r.Subject.Key()
	}
	h.broadcast(subject, msg)
}

// Run starts the heartbeat loop. Run blocks until ctx is cancelled, then
// closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.Publish(EventHeartbeat, h.heartbeat())
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// An incomplete or malformed subject filter is rejected with 400 before the
// upgrade. A heartbeat is sent immediately on connect. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var subject string
	if q := r.URL.Query(); q.Has("learner") || q.Has("class_id") || q.Has("course_id") {
		ref, err := types.SubjectFromQuery(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		subject = ref.Key()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		subject: subject,
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := json.Marshal(Message{Event: EventHeartbeat, Data: h.heartbeat()}); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) heartbeat() Heartbeat {
	return Heartbeat{
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
		Clients:     h.Count(),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(subject string, data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(subject) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Outgoing buffer full.
			h.unregister(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
