// Package websocket feeds relay lifecycle events (conversation started,
// transcript fragments, replies, casts) to connected observers, e.g. the
// monitoring UI.
package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Observers connect from the bundled UI on other hosts.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RelayEvent is one item on the observer feed.
type RelayEvent struct {
	Type         string `json:"type"`
	User         string `json:"user,omitempty"`
	Conversation uint64 `json:"conversation,omitempty"`
	Text         string `json:"text,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Hub maintains the set of connected observers and broadcasts relay events
// to them. A slow observer is dropped rather than allowed to stall the feed.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	events     chan RelayEvent

	logger *zap.Logger
}

// NewHub creates a new observer hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan RelayEvent, 64),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client.id] = client
			h.logger.Info("Observer connected", zap.String("observerID", client.id))

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.logger.Info("Observer disconnected", zap.String("observerID", client.id))

		case event := <-h.events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode relay event", zap.Error(err))
				continue
			}
			for id, client := range h.clients {
				select {
				case client.send <- payload:
				default:
					delete(h.clients, id)
					close(client.send)
					h.logger.Warn("Dropped slow observer", zap.String("observerID", id))
				}
			}
		}
	}
}

// Publish puts an event on the feed. Never blocks; when the feed is full
// the event is dropped, observers are diagnostics only.
func (h *Hub) Publish(event RelayEvent) {
	event.Timestamp = time.Now().Unix()
	select {
	case h.events <- event:
	default:
	}
}

// Client is one connected observer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	logger *zap.Logger
}

// HandleObserver upgrades an HTTP request to an observer connection.
func HandleObserver(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		id:     uuid.NewString(),
		logger: logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump discards inbound frames; the feed is one-way. It exists to
// notice closed connections and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
