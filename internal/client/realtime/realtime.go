// Package realtime delivers new messages, edits, and typing transitions as
// they happen, and publishes the local user's typing state with debounce.
//
// All live state (channel handles, pending timers) lives in an explicit
// Session owned by the caller, constructed and torn down explicitly,
// rather than in package-level maps.
package realtime

import (
	"context"

	"github.com/nkrylov/cipherchat/internal/models"
)

// Transport is the pub/sub change feed a Session consumes. Channel names
// are caller-chosen and unique per logical subscription; subscribing an
// existing name replaces that channel.
type Transport interface {
	// Subscribe opens a named channel for row changes on table matching
	// filter, delivering events to handler in arrival order. The returned
	// function tears down only this channel and is safe to call repeatedly.
	Subscribe(ctx context.Context, name, table string, filter models.SubscriptionFilter, handler func(models.ChangeEvent)) (func(), error)
}

// TypingPublisher writes the local user's typing state to the remote store.
type TypingPublisher interface {
	// UpsertTyping inserts or refreshes the indicator keyed by
	// (conversation, user).
	UpsertTyping(ctx context.Context, conversationID, userID string, isTyping bool) error

	// DeleteTyping removes the indicator for (conversation, user).
	DeleteTyping(ctx context.Context, conversationID, userID string) error
}

// Identity yields the current authenticated user. CurrentUserID returns ""
// when there is no session.
type Identity interface {
	CurrentUserID() string
}
