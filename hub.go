package main

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"loupgarou/engine"
)

// WSMessage represents a message from the client
type WSMessage struct {
	Action string             `json:"action"`
	Role   string             `json:"role,omitempty"`
	Target engine.PlayerID    `json:"target,omitempty"`
	Pair   [2]engine.PlayerID `json:"pair,omitempty"`
	Save   bool               `json:"save,omitempty"`
	Kill   engine.PlayerID    `json:"kill,omitempty"`
	Hunter engine.PlayerID    `json:"hunter,omitempty"`
	Votes  engine.Votes       `json:"votes,omitempty"`
}

// Client represents a websocket connection. Seat 0 is the moderator.
type Client struct {
	conn    *websocket.Conn
	seat    engine.PlayerID
	writeMu sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

func (c *Client) name() string {
	if c.seat == 0 {
		return "moderator"
	}
	return "seat " + strconv.Itoa(int(c.seat))
}

func (c *Client) send(message []byte) {
	LogWSMessage("OUT", c.name(), string(message))

	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.TextMessage, message)
	c.writeMu.Unlock()

	if err != nil {
		logger.Warnf("WebSocket write error to %s: %v", c.name(), err)
	}
}

// WebSocket hub for broadcasting updates to all connected clients
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
}

var hub = newHub()

// connected returns the clients currently registered.
func (h *Hub) connected() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// sendToSeat sends message to every connection of seat.
func (h *Hub) sendToSeat(seat engine.PlayerID, message []byte) {
	for _, client := range h.connected() {
		if client.seat == seat {
			client.send(message)
		}
	}
}

// announce sends message to every client through the hub goroutine.
func (h *Hub) announce(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *Hub) run() {
	h.wg.Add(1)
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (%s). Total: %d", client.name(), total)
			sendGameView(client)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				DebugLog("hub.unregister: %s disconnected", client.name())
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client disconnected. Total: %d", total)

		case message := <-h.broadcast:
			for _, client := range h.connected() {
				client.send(message)
			}
		}
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Capture globals at entry to avoid race conditions in tests
	currentHub := hub

	seat, err := seatFromRequest(r, currentGame())
	if err != nil {
		DebugLog("handleWebSocket: rejected connection: %v", err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var upgrader = websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error for seat %d: %v", seat, err)
		return
	}

	client := &Client{conn: conn, seat: seat}
	currentHub.register <- client

	// Handle messages and disconnection
	go func() {
		defer func() {
			currentHub.unregister <- conn
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			handleWSMessage(client, message)
		}
	}()
}
