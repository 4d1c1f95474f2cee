package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEvent(t *testing.T, conversationID, id string) models.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(models.Message{ID: id, ConversationID: conversationID})
	require.NoError(t, err)
	return models.ChangeEvent{Table: models.TableMessages, Event: models.EventInsert, New: raw}
}

func subscribe(c *Client, channel, table, conversationID string) {
	c.handleRequest(context.Background(), models.FeedRequest{
		Action:  "subscribe",
		Channel: channel,
		Table:   table,
		Filter:  models.SubscriptionFilter{ConversationID: conversationID},
	})
}

func newTestHub(canWatch MembershipChecker) *Hub {
	return NewHub(logging.NewNopLogger(), canWatch)
}

func TestBroadcast_MatchesTableAndConversation(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(h, nil, "u-1")
	h.register(c)

	subscribe(c, "ch-1", models.TableMessages, "c-1")
	subscribe(c, "ch-2", models.TableMessages, "c-2")
	subscribe(c, "ch-3", models.TableTypingIndicators, "c-1")

	h.Broadcast(messageEvent(t, "c-1", "m-1"))

	require.Len(t, c.send, 1)
	frame := <-c.send
	assert.Equal(t, "ch-1", frame.Channel)

	var got models.Message
	require.NoError(t, json.Unmarshal(frame.Change.New, &got))
	assert.Equal(t, "m-1", got.ID)
}

func TestBroadcast_PreservesOrder(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(h, nil, "u-1")
	h.register(c)
	subscribe(c, "ch", models.TableMessages, "c-1")

	h.Broadcast(messageEvent(t, "c-1", "m-1"))
	h.Broadcast(messageEvent(t, "c-1", "m-2"))
	h.Broadcast(messageEvent(t, "c-1", "m-3"))

	var ids []string
	for i := 0; i < 3; i++ {
		frame := <-c.send
		var m models.Message
		require.NoError(t, json.Unmarshal(frame.Change.New, &m))
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, ids)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(h, nil, "u-1")
	h.register(c)
	subscribe(c, "ch", models.TableMessages, "c-1")

	c.handleRequest(context.Background(), models.FeedRequest{Action: "unsubscribe", Channel: "ch"})

	h.Broadcast(messageEvent(t, "c-1", "m-1"))
	assert.Empty(t, c.send)
}

func TestSubscribe_RefusedForNonMembers(t *testing.T) {
	h := newTestHub(func(ctx context.Context, userID, conversationID string) bool {
		return userID == "member"
	})

	outsider := newClient(h, nil, "outsider")
	h.register(outsider)
	subscribe(outsider, "ch", models.TableMessages, "c-1")

	member := newClient(h, nil, "member")
	h.register(member)
	subscribe(member, "ch", models.TableMessages, "c-1")

	h.Broadcast(messageEvent(t, "c-1", "m-1"))

	assert.Empty(t, outsider.send)
	assert.Len(t, member.send, 1)
}

func TestBroadcast_DeleteEventUsesOldRow(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(h, nil, "u-1")
	h.register(c)
	subscribe(c, "ch", models.TableTypingIndicators, "c-1")

	raw, err := json.Marshal(models.TypingIndicator{ID: "t-1", ConversationID: "c-1", UserID: "u-2"})
	require.NoError(t, err)
	h.Broadcast(models.ChangeEvent{Table: models.TableTypingIndicators, Event: models.EventDelete, Old: raw})

	require.Len(t, c.send, 1)
	frame := <-c.send
	assert.Equal(t, models.EventDelete, frame.Change.Event)
}

func TestBroadcast_DropsStalledClient(t *testing.T) {
	h := newTestHub(nil)
	c := newClient(h, nil, "u-1")
	c.send = make(chan models.FeedFrame, 1)
	h.register(c)
	subscribe(c, "ch", models.TableMessages, "c-1")

	h.Broadcast(messageEvent(t, "c-1", "m-1"))
	h.Broadcast(messageEvent(t, "c-1", "m-2"))

	h.mu.RLock()
	_, stillThere := h.clients[c]
	h.mu.RUnlock()
	assert.False(t, stillThere)
}
