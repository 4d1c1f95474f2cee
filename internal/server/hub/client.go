package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nkrylov/cipherchat/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: validate origin once a web client exists
		return true
	},
}

// Client is one authenticated feed connection with its named subscriptions.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan models.FeedFrame

	mu   sync.RWMutex
	subs map[string]models.FeedRequest // channel name -> subscription
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan models.FeedFrame, sendBufferSize),
		subs:   make(map[string]models.FeedRequest),
	}
}

// ServeWS upgrades an authenticated request and runs the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, userID)
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// matchingChannels returns the names of this client's subscriptions that the
// event belongs to.
func (c *Client) matchingChannels(table, conversationID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for name, sub := range c.subs {
		if sub.Table != table {
			continue
		}
		if sub.Filter.ConversationID != "" && sub.Filter.ConversationID != conversationID {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (c *Client) handleRequest(ctx context.Context, req models.FeedRequest) {
	switch req.Action {
	case "subscribe":
		if req.Filter.ConversationID != "" && !c.hub.canWatch(ctx, c.userID, req.Filter.ConversationID) {
			c.hub.logger.Warn(ctx, "subscription refused",
				"user", c.userID, "conversation", req.Filter.ConversationID)
			return
		}
		c.mu.Lock()
		c.subs[req.Channel] = req
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subs, req.Channel)
		c.mu.Unlock()
	default:
		c.hub.logger.Warn(ctx, "unknown feed action", "action", req.Action)
	}
}

// readPump consumes subscription requests until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn(context.Background(), "feed read error", "error", err)
			}
			return
		}

		var req models.FeedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.hub.logger.Warn(context.Background(), "malformed feed request", "error", err)
			continue
		}
		c.handleRequest(context.Background(), req)
	}
}

// writePump forwards frames to the peer and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
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
