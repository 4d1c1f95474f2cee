package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/repositories/repomanager"
)

// TypingService maintains the ephemeral typing indicators and broadcasts
// their changes. A background sweep deletes rows that were not refreshed
// within the liveness window, emitting DELETE events so clients drop
// indicators from users whose "stopped typing" signal never arrived.
type TypingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	broadcaster Broadcaster
	logger      logging.Logger
}

func NewTypingService(db *sql.DB, m repomanager.RepositoryManager, b Broadcaster, logger logging.Logger) *TypingService {
	if b == nil {
		b = nopBroadcaster{}
	}
	return &TypingService{db: db, repomanager: m, broadcaster: b, logger: logger}
}

// Upsert records that a user is (or is not) typing in a conversation.
func (s *TypingService) Upsert(ctx context.Context, conversationID, userID string, isTyping bool) (*models.TypingIndicator, error) {
	ind, inserted, err := s.repomanager.Typing(s.db).Upsert(ctx, conversationID, userID, isTyping)
	if err != nil {
		return nil, err
	}

	event := models.EventUpdate
	if inserted {
		event = models.EventInsert
	}
	s.emit(event, ind, nil)
	return ind, nil
}

// Delete removes a user's indicator. Deleting an absent indicator is a no-op
// and emits nothing.
func (s *TypingService) Delete(ctx context.Context, conversationID, userID string) error {
	ind, err := s.repomanager.Typing(s.db).Delete(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	s.emit(models.EventDelete, nil, ind)
	return nil
}

// StartSweep removes stale indicators every interval until ctx is done.
func (s *TypingService) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TypingService) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-common.TypingLivenessWindow)
	stale, err := s.repomanager.Typing(s.db).DeleteStale(ctx, cutoff)
	if err != nil {
		s.logger.Warn(ctx, "sweeping stale typing indicators", "error", err)
		return
	}
	for i := range stale {
		s.emit(models.EventDelete, nil, &stale[i])
	}
}

func (s *TypingService) emit(event models.EventType, newRow, oldRow *models.TypingIndicator) {
	change := models.ChangeEvent{Table: models.TableTypingIndicators, Event: event}
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
