package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// job:update / job:delete frames pushed to clients
	EventJobUpdate = "job:update"
	EventJobDelete = "job:delete"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 32
)

type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// client is one websocket connection belonging to a user. Writes go through
// the send channel so frames for a user stay in publish order.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub routes events to the websocket connections of their owning user.
// Delivery is best-effort and at-most-once; clients reconcile by re-fetching
// job state on (re)connect.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

// Register attaches an upgraded connection to the user's room and starts its
// read/write pumps. It returns immediately.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("websocket connected")

	go c.writePump(h)
	go c.readPump(h)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Publish sends an event to every connection of the given user. A slow
// connection's frame is dropped rather than blocking the caller.
func (h *Hub) Publish(userID, event string, data interface{}) {
	payload, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal notification")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("user_id", userID).Msg("notification dropped, client too slow")
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is to notice the peer going away.
func (c *client) readPump(h *Hub) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			log.Debug().Str("user_id", c.userID).Msg("websocket disconnected")
			return
		}
	}
}
