// Package hub fans row-level change events out to websocket feed
// subscribers. Each connected client carries its own named subscriptions;
// the hub matches every broadcast event against them and enqueues a frame
// per matching channel, preserving commit order per client.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
)

// MembershipChecker authorizes a subscription: may userID watch
// conversationID. Wired to the conversations repository in the app.
type MembershipChecker func(ctx context.Context, userID, conversationID string) bool

type Hub struct {
	logger   logging.Logger
	canWatch MembershipChecker
	mu       sync.RWMutex
	clients  map[*Client]struct{}
}

func NewHub(logger logging.Logger, canWatch MembershipChecker) *Hub {
	if canWatch == nil {
		canWatch = func(context.Context, string, string) bool { return true }
	}
	return &Hub{
		logger:   logger,
		canWatch: canWatch,
		clients:  make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info(context.Background(), "feed client connected", "user", c.userID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Info(context.Background(), "feed client disconnected", "user", c.userID)
}

// Broadcast delivers one change event to every matching subscription of
// every client. A client whose send buffer is full is dropped rather than
// allowed to stall the rest.
func (h *Hub) Broadcast(event models.ChangeEvent) {
	conversationID := eventConversationID(event)

	h.mu.RLock()
	var stalled []*Client
	for c := range h.clients {
		for _, channel := range c.matchingChannels(event.Table, conversationID) {
			frame := models.FeedFrame{Channel: channel, Change: event}
			select {
			case c.send <- frame:
			default:
				stalled = append(stalled, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.Warn(context.Background(), "dropping stalled feed client", "user", c.userID)
		h.unregister(c)
	}
}

// eventConversationID extracts the conversation id from whichever row the
// event carries.
func eventConversationID(event models.ChangeEvent) string {
	var row struct {
		ConversationID string `json:"conversation_id"`
	}
	if event.New != nil {
		if err := json.Unmarshal(event.New, &row); err == nil && row.ConversationID != "" {
			return row.ConversationID
		}
	}
	if event.Old != nil {
		if err := json.Unmarshal(event.Old, &row); err == nil {
			return row.ConversationID
		}
	}
	return ""
}
