package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	name    string
	table   string
	filter  models.SubscriptionFilter
	handler func(models.ChangeEvent)
	closed  bool
}

// fakeTransport is an in-memory Transport that lets tests emit change
// events into subscribed handlers.
type fakeTransport struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{channels: make(map[string]*fakeChannel)}
}

func (f *fakeTransport) Subscribe(_ context.Context, name, table string, filter models.SubscriptionFilter, handler func(models.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &fakeChannel{name: name, table: table, filter: filter, handler: handler}
	f.channels[name] = ch
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		ch.closed = true
	}, nil
}

func (f *fakeTransport) emit(table, conversationID string, ev models.ChangeEvent) {
	f.mu.Lock()
	var handlers []func(models.ChangeEvent)
	for _, ch := range f.channels {
		if !ch.closed && ch.table == table && ch.filter.ConversationID == conversationID {
			handlers = append(handlers, ch.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.channels {
		if !ch.closed {
			n++
		}
	}
	return n
}

type publishCall struct {
	conversationID string
	userID         string
	isTyping       bool
	deletion       bool
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

func (f *fakePublisher) UpsertTyping(_ context.Context, conversationID, userID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{conversationID, userID, isTyping, false})
	return nil
}

func (f *fakePublisher) DeleteTyping(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{conversationID, userID, false, true})
	return nil
}

func (f *fakePublisher) snapshot() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeIdentity struct{ userID string }

func (f fakeIdentity) CurrentUserID() string { return f.userID }

func newTestSession(t *testing.T) (*Session, *fakeTransport, *fakePublisher) {
	t.Helper()
	transport := newFakeTransport()
	publisher := &fakePublisher{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	s := NewSession(transport, publisher, fakeIdentity{userID: "me"}, logger)
	s.debounce = 30 * time.Millisecond // keep the tests fast
	t.Cleanup(s.Cleanup)
	return s, transport, publisher
}

func insertEvent(t *testing.T, m models.Message) models.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return models.ChangeEvent{Table: models.TableMessages, Event: models.EventInsert, New: raw}
}

func TestSubscribeToMessages_DeliversInArrivalOrder(t *testing.T) {
	s, transport, _ := newTestSession(t)

	var got []string
	_, err := s.SubscribeToMessages(context.Background(), "conv", func(m models.Message) {
		got = append(got, m.ID)
	})
	require.NoError(t, err)

	for _, id := range []string{"m1", "m2", "m3"} {
		transport.emit(models.TableMessages, "conv", insertEvent(t, models.Message{ID: id, ConversationID: "conv"}))
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestSubscribeToMessages_IgnoresOtherEventsAndConversations(t *testing.T) {
	s, transport, _ := newTestSession(t)

	var got []string
	_, err := s.SubscribeToMessages(context.Background(), "conv", func(m models.Message) {
		got = append(got, m.ID)
	})
	require.NoError(t, err)

	transport.emit(models.TableMessages, "other", insertEvent(t, models.Message{ID: "x", ConversationID: "other"}))
	transport.emit(models.TableMessages, "conv", models.ChangeEvent{Event: models.EventUpdate, New: []byte(`{"id":"u"}`)})

	assert.Empty(t, got)
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	s, transport, _ := newTestSession(t)

	var got []string
	unsubscribe, err := s.SubscribeToMessages(context.Background(), "conv", func(m models.Message) {
		got = append(got, m.ID)
	})
	require.NoError(t, err)

	transport.emit(models.TableMessages, "conv", insertEvent(t, models.Message{ID: "before"}))
	unsubscribe()
	unsubscribe() // second call must be safe
	transport.emit(models.TableMessages, "conv", insertEvent(t, models.Message{ID: "after"}))

	assert.Equal(t, []string{"before"}, got)
}

func TestSubscribeToMessageUpdates_PassesNewAndOld(t *testing.T) {
	s, transport, _ := newTestSession(t)

	var gotNew, gotOld models.Message
	_, err := s.SubscribeToMessageUpdates(context.Background(), "conv", func(newRow, oldRow models.Message) {
		gotNew, gotOld = newRow, oldRow
	})
	require.NoError(t, err)

	transport.emit(models.TableMessages, "conv", models.ChangeEvent{
		Event: models.EventUpdate,
		New:   []byte(`{"id":"m1","edited":true}`),
		Old:   []byte(`{"id":"m1","edited":false}`),
	})

	assert.True(t, gotNew.Edited)
	assert.False(t, gotOld.Edited)
	assert.Equal(t, "m1", gotOld.ID)
}

func TestSubscribeToTyping_NormalizesEvents(t *testing.T) {
	s, transport, _ := newTestSession(t)

	type typing struct {
		userID string
		typing bool
	}
	var got []typing
	_, err := s.SubscribeToTyping(context.Background(), "conv", func(userID string, isTyping bool) {
		got = append(got, typing{userID, isTyping})
	})
	require.NoError(t, err)

	fresh, err := json.Marshal(models.TypingIndicator{UserID: "alice", IsTyping: true, UpdatedAt: time.Now()})
	require.NoError(t, err)
	stale, err := json.Marshal(models.TypingIndicator{UserID: "bob", IsTyping: true, UpdatedAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	deleted, err := json.Marshal(models.TypingIndicator{UserID: "carol", IsTyping: true, UpdatedAt: time.Now()})
	require.NoError(t, err)

	transport.emit(models.TableTypingIndicators, "conv", models.ChangeEvent{Event: models.EventInsert, New: fresh})
	transport.emit(models.TableTypingIndicators, "conv", models.ChangeEvent{Event: models.EventUpdate, New: stale})
	// Deletes carry only the old row; the user id must come from it.
	transport.emit(models.TableTypingIndicators, "conv", models.ChangeEvent{Event: models.EventDelete, Old: deleted})

	assert.Equal(t, []typing{{"alice", true}, {"bob", false}, {"carol", false}}, got)
}

func TestSetTypingStatus_DebouncesTrue(t *testing.T) {
	s, _, publisher := newTestSession(t)
	ctx := context.Background()

	// Three rapid calls within the window collapse to one publish.
	s.SetTypingStatus(ctx, "conv", true)
	s.SetTypingStatus(ctx, "conv", true)
	s.SetTypingStatus(ctx, "conv", true)

	assert.Empty(t, publisher.snapshot(), "publish must wait for the debounce window")

	require.Eventually(t, func() bool {
		return len(publisher.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := publisher.snapshot()
	assert.Equal(t, publishCall{"conv", "me", true, false}, calls[0])
}

func TestSetTypingStatus_FalsePublishesImmediately(t *testing.T) {
	s, _, publisher := newTestSession(t)

	s.SetTypingStatus(context.Background(), "conv", false)

	calls := publisher.snapshot()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].deletion)
}

func TestSetTypingStatus_FalseCancelsPendingPublish(t *testing.T) {
	s, _, publisher := newTestSession(t)
	ctx := context.Background()

	s.SetTypingStatus(ctx, "conv", true)
	s.SetTypingStatus(ctx, "conv", false)

	time.Sleep(3 * s.debounce)

	calls := publisher.snapshot()
	require.Len(t, calls, 1, "the debounced true publish must never fire")
	assert.True(t, calls[0].deletion)
}

func TestSetTypingStatus_NoIdentityIsSilent(t *testing.T) {
	transport := newFakeTransport()
	publisher := &fakePublisher{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	s := NewSession(transport, publisher, fakeIdentity{}, logger)
	t.Cleanup(s.Cleanup)

	s.SetTypingStatus(context.Background(), "conv", true)
	s.SetTypingStatus(context.Background(), "conv", false)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, publisher.snapshot())
}

func TestUnsubscribeFromConversation_ScopedTeardown(t *testing.T) {
	s, transport, publisher := newTestSession(t)
	ctx := context.Background()

	var convGot, otherGot int
	_, err := s.SubscribeToMessages(ctx, "conv", func(models.Message) { convGot++ })
	require.NoError(t, err)
	_, err = s.SubscribeToTyping(ctx, "conv", func(string, bool) { convGot++ })
	require.NoError(t, err)
	_, err = s.SubscribeToMessages(ctx, "other", func(models.Message) { otherGot++ })
	require.NoError(t, err)

	s.SetTypingStatus(ctx, "conv", true)
	s.UnsubscribeFromConversation("conv")

	transport.emit(models.TableMessages, "conv", insertEvent(t, models.Message{ID: "m"}))
	transport.emit(models.TableMessages, "other", insertEvent(t, models.Message{ID: "m"}))

	time.Sleep(3 * s.debounce)

	assert.Equal(t, 0, convGot, "no callbacks after teardown")
	assert.Equal(t, 1, otherGot, "other conversations keep flowing")
	assert.Empty(t, publisher.snapshot(), "pending typing timer must be cancelled")
}

func TestCleanup_TearsDownEverything(t *testing.T) {
	s, transport, publisher := newTestSession(t)
	ctx := context.Background()

	var got int
	_, err := s.SubscribeToMessages(ctx, "a", func(models.Message) { got++ })
	require.NoError(t, err)
	_, err = s.SubscribeToMessageUpdates(ctx, "b", func(_, _ models.Message) { got++ })
	require.NoError(t, err)

	s.SetTypingStatus(ctx, "a", true)
	s.Cleanup()

	transport.emit(models.TableMessages, "a", insertEvent(t, models.Message{ID: "m"}))
	time.Sleep(3 * s.debounce)

	assert.Equal(t, 0, got)
	assert.Empty(t, publisher.snapshot())
	assert.Equal(t, 0, transport.openCount())

	// Subscribing after Cleanup fails.
	_, err = s.SubscribeToMessages(ctx, "a", func(models.Message) {})
	require.Error(t, err)
}

func TestResubscribe_ReplacesChannel(t *testing.T) {
	s, transport, _ := newTestSession(t)
	ctx := context.Background()

	var first, second int
	_, err := s.SubscribeToMessages(ctx, "conv", func(models.Message) { first++ })
	require.NoError(t, err)
	_, err = s.SubscribeToMessages(ctx, "conv", func(models.Message) { second++ })
	require.NoError(t, err)

	transport.emit(models.TableMessages, "conv", insertEvent(t, models.Message{ID: "m"}))

	assert.Equal(t, 0, first, "replaced subscription must not fire")
	assert.Equal(t, 1, second)
}
