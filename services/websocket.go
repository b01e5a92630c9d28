package services

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024 * 1024 // 1MB

	sendBuffer = 256
)

// WebSocketMessage is the standard message format for WebSocket communication
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	User string          `json:"user,omitempty"`
}

// NewMessage builds a message with data encoded as JSON.
func NewMessage(kind string, data any) (WebSocketMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return WebSocketMessage{}, err
	}
	return WebSocketMessage{Type: kind, Data: raw}, nil
}

// MessageHandler answers a client message. A nil reply sends nothing.
type MessageHandler func(ctx context.Context, c *Client, msg WebSocketMessage) *WebSocketMessage

// Client represents a connected WebSocket client
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	UID     string
	Handler MessageHandler

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, uid string) *Client {
	return &Client{Hub: hub, Conn: conn, UID: uid, send: make(chan []byte, sendBuffer)}
}

// Deliver queues msg for this client only. It reports false when the client
// is gone or its buffer is full.
func (c *Client) Deliver(msg WebSocketMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.Hub.logger.Printf("Error marshalling WebSocket message: %v", err)
		return false
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps messages from the WebSocket connection to the client's
// handler. It returns when the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Printf("WebSocket error: %v", err)
			}
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			c.Hub.logger.Printf("Error unmarshalling WebSocket message: %v", err)
			continue
		}
		wsMessage.User = c.UID

		if wsMessage.Type == "ping" {
			pong, _ := NewMessage("pong", map[string]string{"timestamp": time.Now().Format(time.RFC3339)})
			c.Deliver(pong)
			continue
		}

		if c.Handler == nil {
			continue
		}
		if reply := c.Handler(ctx, c, wsMessage); reply != nil {
			c.Deliver(*reply)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type broadcast struct {
	payload []byte
	exclude string
	kind    string
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcast
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcast),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Broadcast sends a message to every connected client except those signed
// in as excludeUID. An empty excludeUID reaches everyone.
func (h *Hub) Broadcast(message WebSocketMessage, excludeUID string) {
	message.User = excludeUID
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- broadcast{payload: payload, exclude: excludeUID, kind: message.Type}:
	case <-h.quit:
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.quit)
		for client := range h.clients {
			client.close()
			delete(h.clients, client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Printf("Client connected: %s", client.UID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.logger.Printf("Client disconnected: %s", client.UID)
			}
		case msg := <-h.broadcast:
			h.logger.Printf("Broadcasting message of type '%s' to %d clients", msg.kind, len(h.clients))
			for client := range h.clients {
				if msg.exclude != "" && client.UID == msg.exclude {
					continue
				}
				if !client.enqueue(msg.payload) {
					h.logger.Printf("Client send buffer full, removing client: %s", client.UID)
					client.close()
					delete(h.clients, client)
				}
			}
		}
	}
}
