// Package models holds the wire types shared by the client and server:
// message rows, typing indicators, key records, and the change-event frames
// delivered over the realtime feed.
package models

import (
	"encoding/json"
	"time"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/keyring"
)

// Message is the authoritative remote message row. Plaintext never exists
// outside the two endpoints' memory; the body travels as base64 ciphertext
// plus its nonce. Deletes and edits are soft flags so conversation ordering
// is preserved.
type Message struct {
	ID                   string     `json:"id"`
	ConversationID       string     `json:"conversation_id"`
	SenderID             string     `json:"sender_id"`
	EncryptedContent     string     `json:"encrypted_content"`
	InitializationVector string     `json:"initialization_vector"`
	SequenceNumber       int64      `json:"sequence_number"`
	Deleted              bool       `json:"deleted"`
	Edited               bool       `json:"edited"`
	EditedAt             *time.Time `json:"edited_at,omitempty"`
	DeliveredAt          *time.Time `json:"delivered_at,omitempty"`
	ReadAt               *time.Time `json:"read_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// TypingIndicator is ephemeral presence state, unique per
// (conversation_id, user_id). Rows are upserted while a user types and
// deleted when they stop or go stale.
type TypingIndicator struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Stale reports whether the indicator is older than the liveness window and
// must be treated as "not typing" even if not yet deleted.
func (t TypingIndicator) Stale(now time.Time) bool {
	return now.Sub(t.UpdatedAt) > common.TypingLivenessWindow
}

// KeyRecord is a user's published encryption key: the public JWK plus the
// salt the key pair was derived with, so any device can re-derive the same
// pair from the password. Deactivation is the only lifecycle transition.
type KeyRecord struct {
	UserID       string               `json:"user_id"`
	PublicKeyJWK keyring.PublicKeyJWK `json:"public_key_jwk"`
	SaltBase64   string               `json:"salt_base64"`
	Active       bool                 `json:"active"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Conversation is a two-party direct-message thread.
type Conversation struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is the metadata row for an encrypted blob stored in object
// storage. The decryption key travels inside a normal encrypted message,
// never through this record.
type Attachment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	StorageKey     string    `json:"storage_key"`
	FileName       string    `json:"file_name"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventType classifies a row-level change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Table names used by the change feed.
const (
	TableMessages         = "messages"
	TableTypingIndicators = "typing_indicators"
)

// ChangeEvent is one row-level change notification. New carries the row
// after the change (INSERT/UPDATE); Old carries the row before it
// (UPDATE/DELETE).
type ChangeEvent struct {
	Table string          `json:"table"`
	Event EventType       `json:"event"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// SubscriptionFilter narrows a feed subscription to one conversation.
type SubscriptionFilter struct {
	ConversationID string `json:"conversation_id"`
}

// FeedRequest is the client→server frame on the feed socket. Channel names
// are caller-chosen and unique per logical subscription; re-subscribing an
// existing name replaces that channel.
type FeedRequest struct {
	Action  string             `json:"action"` // "subscribe" or "unsubscribe"
	Channel string             `json:"channel"`
	Table   string             `json:"table"`
	Filter  SubscriptionFilter `json:"filter"`
}

// FeedFrame is the server→client frame: a change event tagged with the
// channel it matched.
type FeedFrame struct {
	Channel string      `json:"channel"`
	Change  ChangeEvent `json:"change"`
}
