package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

/*
LEARNING: HUB EVENT LOOP

One goroutine owns the set of UI clients. Register, unregister and broadcast all
arrive over channels, so the client map needs no lock on the hot path. Each
client has a buffered Send channel drained by its own WritePump; a client whose
buffer is full is dropped rather than allowed to stall everyone else.
*/

// Event types pushed to UI clients
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventMatch        = "match"
	EventNotification = "notification"
	EventChat         = "chat"
	EventTyping       = "typing"
	EventPresence     = "presence"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the bridge only listens on a local address
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the envelope every UI client receives.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	once       sync.Once

	mu    sync.RWMutex
	count int
}

// Client is one connected UI.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Start begins the hub event loop.
func (h *Hub) Start() {
	go func() {
		for {
			select {
			case <-h.done:
				for c := range h.clients {
					close(c.Send)
					delete(h.clients, c)
				}
				h.setCount(0)
				return

			case c := <-h.register:
				h.clients[c] = true
				h.setCount(len(h.clients))
				slog.Debug("bridge: ui client joined", "client_id", c.ID, "clients", len(h.clients))

			case c := <-h.unregister:
				if _, ok := h.clients[c]; ok {
					delete(h.clients, c)
					close(c.Send)
					h.setCount(len(h.clients))
					slog.Debug("bridge: ui client left", "client_id", c.ID, "clients", len(h.clients))
				}

			case msg := <-h.broadcast:
				for c := range h.clients {
					select {
					case c.Send <- msg:
					default:
						slog.Warn("bridge: ui client buffer full, dropping", "client_id", c.ID)
						delete(h.clients, c)
						close(c.Send)
					}
				}
				h.setCount(len(h.clients))
			}
		}
	}()
}

// Publish queues an event for every connected UI client. It never blocks the
// caller for long: events are dropped if the hub is backed up.
func (h *Hub) Publish(eventType string, payload any) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		slog.Error("bridge: cannot encode event", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		slog.Warn("bridge: hub backlog full, event dropped", "type", eventType)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ServeWS upgrades the request and runs the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("bridge: websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.WritePump()
	go c.ReadPump()
}

// ReadPump only watches for the client going away; UI commands use the HTTP
// routes.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("bridge: ui client read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
