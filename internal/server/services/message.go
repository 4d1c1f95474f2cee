package services

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/repositories/repomanager"
)

// MessageService stores encrypted messages and emits a change event for
// every mutation so feed subscribers see writes in commit order. The server
// never inspects payloads; it only checks conversation membership.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	broadcaster Broadcaster
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, b Broadcaster) *MessageService {
	if b == nil {
		b = nopBroadcaster{}
	}
	return &MessageService{db: db, repomanager: m, broadcaster: b}
}

// OpenConversation finds or creates the thread between the caller and peer.
func (s *MessageService) OpenConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error) {
	return s.repomanager.Conversations(s.db).FindOrCreate(ctx, userID, peerID)
}

func (s *MessageService) requireMember(ctx context.Context, db dbx.DBTX, conversationID, userID string) error {
	conv, err := s.repomanager.Conversations(db).Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserA != userID && conv.UserB != userID {
		return common.ErrorUnauthorized
	}
	return nil
}

// Send inserts a message. The sequence number is assigned inside a
// transaction so concurrent sends to one conversation cannot collide.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID, ciphertext, nonce string) (*models.Message, error) {
	var msg *models.Message
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.requireMember(ctx, tx, conversationID, senderID); err != nil {
			return err
		}
		var insErr error
		msg, insErr = s.repomanager.Messages(tx).Insert(ctx, &models.Message{
			ConversationID:       conversationID,
			SenderID:             senderID,
			EncryptedContent:     ciphertext,
			InitializationVector: nonce,
		})
		return insErr
	})
	if err != nil {
		return nil, err
	}

	s.emit(models.EventInsert, msg, nil)
	return msg, nil
}

// Edit replaces a message's ciphertext. Only the sender may edit.
func (s *MessageService) Edit(ctx context.Context, userID, messageID, ciphertext, nonce string) (*models.Message, error) {
	repo := s.repomanager.Messages(s.db)

	old, err := repo.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if old.SenderID != userID {
		return nil, common.ErrorUnauthorized
	}

	updated, err := repo.UpdateContent(ctx, messageID, ciphertext, nonce)
	if err != nil {
		return nil, err
	}

	s.emit(models.EventUpdate, updated, old)
	return updated, nil
}

// Delete soft-deletes a message. Only the sender may delete.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) (*models.Message, error) {
	repo := s.repomanager.Messages(s.db)

	old, err := repo.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if old.SenderID != userID {
		return nil, common.ErrorUnauthorized
	}

	updated, err := repo.MarkDeleted(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.emit(models.EventUpdate, updated, old)
	return updated, nil
}

// List returns up to limit newest messages for a member of the conversation.
func (s *MessageService) List(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	if err := s.requireMember(ctx, s.db, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > common.MessagePageSize {
		limit = common.MessagePageSize
	}
	return s.repomanager.Messages(s.db).ListRecent(ctx, conversationID, limit)
}

func (s *MessageService) emit(event models.EventType, newRow, oldRow *models.Message) {
	change := models.ChangeEvent{Table: models.TableMessages, Event: event}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return
		}
		change.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return
		}
		change.Old = raw
	}
	s.broadcaster.Broadcast(change)
}
