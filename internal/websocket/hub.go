package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StatusRoom carries roster status updates
const StatusRoom = "status"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Message is one frame sent to dashboards
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one dashboard connection subscribed to a room
type Client struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Room       string
	Send       chan *Message
	Hub        *Hub
}

// NewClient wraps an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, room, remoteAddr string) *Client {
	return &Client{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		Conn:       conn,
		Room:       room,
		Send:       make(chan *Message, sendBuffer),
		Hub:        hub,
	}
}

type broadcastMessage struct {
	room    string
	message *Message
}

// Hub fans messages out to the clients of each room. The latest message per
// room is replayed to clients as they join.
type Hub struct {
	rooms   map[string]map[*Client]bool
	latest  map[string]*Message
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub; call Run to start delivering
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		latest:     make(map[string]*Message),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case bm := <-h.broadcast:
			h.broadcastToRoom(bm)
		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToRoom queues a message for every client in room. Messages are
// dropped when the hub is stopped or its queue is full.
func (h *Hub) BroadcastToRoom(room string, msgType string, payload interface{}) {
	bm := broadcastMessage{
		room:    room,
		message: &Message{Type: msgType, Payload: payload, Timestamp: time.Now().UTC()},
	}
	select {
	case h.broadcast <- bm:
	case <-h.done:
	default:
		log.Printf("[WebSocket] Broadcast queue full, dropping %s message for room %s", msgType, room)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	if latest := h.latest[client.Room]; latest != nil {
		select {
		case client.Send <- latest:
		default:
		}
	}

	log.Printf("[WebSocket] Client %s (%s) joined room %s. Room size: %d",
		client.ID, client.RemoteAddr, client.Room, len(h.rooms[client.Room]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)
	clients, ok := h.rooms[client.Room]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)

	if len(clients) == 0 {
		delete(h.rooms, client.Room)
	}
	log.Printf("[WebSocket] Client %s left room %s. Room size: %d", client.ID, client.Room, len(clients))
}

func (h *Hub) broadcastToRoom(bm broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[bm.room] = bm.message
	for client := range h.rooms[bm.room] {
		select {
		case client.Send <- bm.message:
		default:
			log.Printf("[WebSocket] Client %s send channel full, dropping message", client.ID)
		}
	}
}

// RoomSize returns the number of clients in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

// ReadPump drains the connection so pongs and close frames are processed.
// Dashboards are receive-only; anything they send is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error from %s: %v", c.ID, err)
			}
			return
		}
	}
}

// WritePump sends queued messages and keepalive pings until Send is closed
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(message); err != nil {
				log.Printf("[WebSocket] Write to %s failed: %v", c.ID, err)
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

func (c *Client) writeJSON(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}
