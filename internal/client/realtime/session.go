package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
)

// TypingDebounce is how long a typing=true publish is held back. A user who
// keeps typing publishes once per debounce window, not once per keystroke.
const TypingDebounce = time.Second

type subKind int

const (
	kindMessageInserts subKind = iota
	kindMessageUpdates
	kindTyping
)

func (k subKind) String() string {
	switch k {
	case kindMessageInserts:
		return "inserts"
	case kindMessageUpdates:
		return "updates"
	default:
		return "typing"
	}
}

type subKey struct {
	conversationID string
	kind           subKind
}

// subscription gates callback delivery so that once stop returns, no further
// callback can be running or start running.
type subscription struct {
	mu     sync.Mutex
	active bool
	cancel func()
}

func (s *subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	fn()
}

func (s *subscription) stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Session owns the live subscriptions and typing timers for one client.
// Each conversation gets three independent logical subscriptions
// (message inserts, message updates, typing changes), each on its own
// channel, so tearing one down leaves the others running.
type Session struct {
	transport Transport
	publisher TypingPublisher
	identity  Identity
	logger    logging.Logger

	debounce time.Duration
	now      func() time.Time

	mu     sync.Mutex
	subs   map[subKey]*subscription
	timers map[string]*time.Timer
	closed bool
}

// NewSession wires a Session over the given transport, publisher and
// identity provider.
func NewSession(transport Transport, publisher TypingPublisher, identity Identity, logger logging.Logger) *Session {
	return &Session{
		transport: transport,
		publisher: publisher,
		identity:  identity,
		logger:    logger,
		debounce:  TypingDebounce,
		now:       time.Now,
		subs:      make(map[subKey]*subscription),
		timers:    make(map[string]*time.Timer),
	}
}

// register installs a subscription under key, replacing (and stopping) any
// existing one, then opens the transport channel.
func (s *Session) register(ctx context.Context, key subKey, table string, handler func(models.ChangeEvent)) (func(), error) {
	sub := &subscription{active: true}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	if old, ok := s.subs[key]; ok {
		old.stop()
	}
	s.subs[key] = sub
	s.mu.Unlock()

	name := fmt.Sprintf("%s:%s:%s", table, key.conversationID, key.kind)
	cancel, err := s.transport.Subscribe(ctx, name, table,
		models.SubscriptionFilter{ConversationID: key.conversationID},
		func(ev models.ChangeEvent) { sub.deliver(func() { handler(ev) }) },
	)
	if err != nil {
		s.mu.Lock()
		if s.subs[key] == sub {
			delete(s.subs, key)
		}
		s.mu.Unlock()
		return nil, err
	}
	sub.mu.Lock()
	sub.cancel = cancel
	sub.mu.Unlock()

	unsubscribe := func() {
		sub.stop()
		s.mu.Lock()
		if s.subs[key] == sub {
			delete(s.subs, key)
		}
		s.mu.Unlock()
	}
	return unsubscribe, nil
}

// SubscribeToMessages delivers each newly inserted message row for the
// conversation, in arrival order. The returned function tears down only
// this channel and is idempotent.
func (s *Session) SubscribeToMessages(ctx context.Context, conversationID string, onMessage func(models.Message)) (func(), error) {
	return s.register(ctx, subKey{conversationID, kindMessageInserts}, models.TableMessages,
		func(ev models.ChangeEvent) {
			if ev.Event != models.EventInsert {
				return
			}
			var m models.Message
			if err := json.Unmarshal(ev.New, &m); err != nil {
				s.logger.Warn(ctx, "bad message insert payload", "error", err)
				return
			}
			onMessage(m)
		})
}

// SubscribeToMessageUpdates delivers (new, old) row pairs on message
// updates, covering edits and soft-deletes.
func (s *Session) SubscribeToMessageUpdates(ctx context.Context, conversationID string, onUpdate func(newRow, oldRow models.Message)) (func(), error) {
	return s.register(ctx, subKey{conversationID, kindMessageUpdates}, models.TableMessages,
		func(ev models.ChangeEvent) {
			if ev.Event != models.EventUpdate {
				return
			}
			var newRow, oldRow models.Message
			if err := json.Unmarshal(ev.New, &newRow); err != nil {
				s.logger.Warn(ctx, "bad message update payload", "error", err)
				return
			}
			if len(ev.Old) > 0 {
				if err := json.Unmarshal(ev.Old, &oldRow); err != nil {
					s.logger.Warn(ctx, "bad message update old payload", "error", err)
					return
				}
			}
			onUpdate(newRow, oldRow)
		})
}

// SubscribeToTyping normalizes insert/update/delete events on the typing
// table into (userID, isTyping) callbacks. Deletes translate to
// isTyping=false using the old row's user id, since the deleted row no longer
// exists to read from. Rows older than the liveness window count as not
// typing even before deletion.
func (s *Session) SubscribeToTyping(ctx context.Context, conversationID string, onTyping func(userID string, isTyping bool)) (func(), error) {
	return s.register(ctx, subKey{conversationID, kindTyping}, models.TableTypingIndicators,
		func(ev models.ChangeEvent) {
			switch ev.Event {
			case models.EventInsert, models.EventUpdate:
				var ind models.TypingIndicator
				if err := json.Unmarshal(ev.New, &ind); err != nil {
					s.logger.Warn(ctx, "bad typing payload", "error", err)
					return
				}
				onTyping(ind.UserID, ind.IsTyping && !ind.Stale(s.now()))
			case models.EventDelete:
				var ind models.TypingIndicator
				if err := json.Unmarshal(ev.Old, &ind); err != nil {
					s.logger.Warn(ctx, "bad typing delete payload", "error", err)
					return
				}
				onTyping(ind.UserID, false)
			}
		})
}

// SetTypingStatus publishes the local user's typing transition.
//
// isTyping=true is debounced: a new call within the window cancels the
// pending publish and restarts the timer. isTyping=false publishes the
// removal immediately. Both authentication absence and publish failures
// degrade silently: typing indicators are best-effort and must never
// disrupt composing.
func (s *Session) SetTypingStatus(ctx context.Context, conversationID string, isTyping bool) {
	userID := s.identity.CurrentUserID()
	if userID == "" {
		s.logger.Debug(ctx, "typing status skipped: no current user")
		return
	}

	if !isTyping {
		s.cancelTimer(conversationID)
		if err := s.publisher.DeleteTyping(ctx, conversationID, userID); err != nil {
			s.logger.Warn(ctx, "typing removal failed", "conversation", conversationID, "error", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[conversationID]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.timers[conversationID] != timer {
			// Cancelled or replaced after firing; the write must not happen.
			s.mu.Unlock()
			return
		}
		delete(s.timers, conversationID)
		s.mu.Unlock()

		if err := s.publisher.UpsertTyping(context.Background(), conversationID, userID, true); err != nil {
			s.logger.Warn(context.Background(), "typing publish failed", "conversation", conversationID, "error", err)
		}
	})
	s.timers[conversationID] = timer
}

// cancelTimer stops any pending typing publish for the conversation. After
// it returns, the associated network write is guaranteed not to happen.
func (s *Session) cancelTimer(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[conversationID]; ok {
		t.Stop()
		delete(s.timers, conversationID)
	}
}

// UnsubscribeFromConversation tears down all three channel kinds for the
// conversation and cancels its pending typing timer. Idempotent.
func (s *Session) UnsubscribeFromConversation(conversationID string) {
	s.mu.Lock()
	var stopped []*subscription
	for _, kind := range []subKind{kindMessageInserts, kindMessageUpdates, kindTyping} {
		key := subKey{conversationID, kind}
		if sub, ok := s.subs[key]; ok {
			stopped = append(stopped, sub)
			delete(s.subs, key)
		}
	}
	if t, ok := s.timers[conversationID]; ok {
		t.Stop()
		delete(s.timers, conversationID)
	}
	s.mu.Unlock()

	for _, sub := range stopped {
		sub.stop()
	}
}

// Cleanup tears down every channel and every pending timer. The session is
// unusable afterwards.
func (s *Session) Cleanup() {
	s.mu.Lock()
	s.closed = true
	var stopped []*subscription
	for key, sub := range s.subs {
		stopped = append(stopped, sub)
		delete(s.subs, key)
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	for _, sub := range stopped {
		sub.stop()
	}
}
