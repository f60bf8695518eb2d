package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds every write, including pings and close frames.
	writeWait = 10 * time.Second
	// pingPeriod keeps idle connections alive through proxies.
	pingPeriod = 30 * time.Second
	// sendBuffer is the per-client outbound queue; a full queue drops.
	sendBuffer = 256
)

// Origin is vetted by middleware.WebSocketCORSCheck before the upgrade
// handler runs, so the upgrader itself accepts everything.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one seated player's connection. A reconnect builds a new
// Client and the hub swaps it in; the old one is drained and closed.
type Client struct {
	conn       *websocket.Conn
	playerID   int
	opponentID int
	matchToken string
	send       chan []byte
}

// Hub indexes connections two ways: by player for direct sends and by
// match token for room broadcasts. Map writes happen only in the hub
// loop; reads take the RWMutex.
type Hub struct {
	clients    map[int]*Client
	matchRooms map[string]map[int]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int]*Client),
		matchRooms: make(map[string]map[int]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// trySend queues a frame without blocking. The caller logs drops; a
// blocked reader goroutine must never wait on a wedged writer.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func encode(message interface{}) ([]byte, bool) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Dropping unmarshalable message: %v", err)
		return nil, false
	}
	return data, true
}

// BroadcastToMatch sends a message to both seats of a match room.
func (h *Hub) BroadcastToMatch(token string, message interface{}) {
	data, ok := encode(message)
	if !ok {
		return
	}

	h.mu.RLock()
	room := h.matchRooms[token]
	targets := make([]*Client, 0, len(room))
	for _, client := range room {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.trySend(data) {
			log.Printf("[WS] Broadcast dropped for player %d in match %s (buffer full)", client.playerID, token)
		}
	}
}

// SendToPlayer sends a message to one player's current connection.
func (h *Hub) SendToPlayer(playerID int, message interface{}) {
	data, ok := encode(message)
	if !ok {
		return
	}

	h.mu.RLock()
	client := h.clients[playerID]
	h.mu.RUnlock()

	if client == nil {
		log.Printf("[WS] SendToPlayer no client for player %d", playerID)
		return
	}
	if !client.trySend(data) {
		log.Printf("[WS] SendToPlayer dropped message for player %d (buffer full)", playerID)
	}
}

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump owns all writes on the connection: queued frames, pings,
// and the close frame when the send channel is shut.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Replaced or unregistered; the close frame is best effort.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for player %d: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for player %d: %v", c.playerID, err)
				return
			}
		}
	}
}

// sendError reports a rejected command back to this connection only.
func (c *Client) sendError(message string) {
	data, ok := encode(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	if ok {
		c.trySend(data)
	}
}
