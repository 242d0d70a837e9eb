package broadcast

import (
	"context"
	"log"
	"sync"

	"github.com/example/modular-world/modules/protocol"
	"github.com/gofiber/contrib/websocket"
)

// DefaultSendBuffer is the number of frames queued per client before the
// client is considered too slow and dropped.
const DefaultSendBuffer = 256

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a registered connection with its own ordered send queue.
type Client struct {
	ID   string
	conn Conn
	send chan []byte
}

// writePump drains the send queue onto the connection. After a write error
// the remaining frames are discarded until the hub closes the queue.
func (c *Client) writePump() {
	failed := false
	for data := range c.send {
		if failed {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[hub] Failed to send to client %s: %v", c.ID, err)
			_ = c.conn.Close()
			failed = true
		}
	}
}

// delivery is a pre-encoded frame addressed to a set of connections.
type delivery struct {
	targets []string
	data    []byte
}

// Hub serializes registration and fan-out through a single loop. Frames for
// one client are written in the order they were sent to the hub.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan string
	deliver    chan delivery
	done       chan struct{}
	sendBuffer int
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan string),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		sendBuffer: DefaultSendBuffer,
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case id := <-h.unregister:
			h.handleUnregister(id)
		case d := <-h.deliver:
			h.handleDeliver(d)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		_ = client.conn.Close()
		delete(h.clients, id)
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.clients[client.ID]; ok {
		close(prev.send)
	}
	h.clients[client.ID] = client
	go client.writePump()
	log.Printf("[hub] Client %s registered", client.ID)
}

func (h *Hub) handleUnregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(client.send)
		log.Printf("[hub] Client %s unregistered", id)
	}
}

func (h *Hub) handleDeliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range d.targets {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.send <- d.data:
		default:
			log.Printf("[hub] Client %s send queue full, dropping connection", id)
			delete(h.clients, id)
			close(client.send)
			_ = client.conn.Close()
		}
	}
}

// Register adds a connection to the hub and returns its client. It returns
// nil once the hub has stopped.
func (h *Hub) Register(id string, conn Conn) *Client {
	client := &Client{ID: id, conn: conn, send: make(chan []byte, h.sendBuffer)}
	select {
	case h.register <- client:
		return client
	case <-h.done:
		return nil
	}
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Send encodes the frame once and queues it for every target connection.
// Unknown targets are skipped.
func (h *Hub) Send(targets []string, msg protocol.Outbound) {
	if len(targets) == 0 {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		log.Printf("[hub] Failed to marshal %s frame: %v", msg.Event, err)
		return
	}
	select {
	case h.deliver <- delivery{targets: targets, data: data}:
	case <-h.done:
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
