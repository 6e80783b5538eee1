package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Event is the frame broadcast to every client
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// TokenParser validates an access token and returns its subject and role
type TokenParser func(token string) (uuid.UUID, string, error)

// Client represents a single connected WebSocket client
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
}

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

// NewHub creates a hub that accepts upgrades from allowedOrigins. An empty list accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        slog.Default().With(slog.String("component", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run dispatches registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("Client connected", slog.String("user_id", client.userID.String()), slog.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debug("Client disconnected", slog.String("user_id", client.userID.String()))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish broadcasts an event. It never blocks the caller; events are dropped when the hub is saturated.
func (h *Hub) Publish(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Warn("Failed to encode event", slog.String("type", eventType), slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("Dropping event, hub is saturated", slog.String("type", eventType))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames to keep the connection alive
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Unexpected close", slog.Any("error", err))
			}
			return
		}
	}
}

// ServeWs authenticates the token query parameter and upgrades the connection
func (h *Hub) ServeWs(parse TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		userID, _, err := parse(tokenString)
		if err != nil {
			h.log.Debug("Connection rejected", slog.Any("error", err))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("Upgrade failed", slog.Any("error", err))
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
