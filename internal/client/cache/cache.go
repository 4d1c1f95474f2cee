// Package cache keeps recent conversation history available offline, under
// bounded storage. Entries hold already-encrypted payloads; the cache never
// sees plaintext.
package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/nkrylov/cipherchat/internal/client/repositories/messages"
	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/dbx"
	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
)

const (
	// RetentionWindow is how long cached rows live before the sweep
	// removes them.
	RetentionWindow = 30 * 24 * time.Hour

	// rowOverheadBytes is the assumed per-row metadata overhead used by the
	// storage estimate. An estimate, not page-level accounting.
	rowOverheadBytes = 200

	// Quota model: a soft advisory limit of perConversationCap rows across
	// assumedConversations conversations.
	perConversationCap    = 100
	assumedConversations  = 20
	quotaWarningThreshold = 0.8
)

// QuotaStatus is the advisory quota signal.
type QuotaStatus struct {
	Approaching bool
	Percentage  float64
}

// Cache is the local message cache service. It owns the raw DB handle so
// replace-all can run delete+insert atomically inside one transaction.
type Cache struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// New returns a Cache over the given local database.
func New(db *sql.DB, logger logging.Logger) *Cache {
	return &Cache{db: db, logger: logger, now: time.Now}
}

// ReplaceConversation supersedes the cached rows for a conversation with the
// given set: delete-all then bulk-insert, in a single transaction, so a
// reader never observes a transiently empty cache mid-replace. Empty input
// is a no-op returning 0.
//
// A retention sweep runs opportunistically afterwards; its failure is logged
// and never aborts the replace.
func (c *Cache) ReplaceConversation(ctx context.Context, conversationID string, msgs []models.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := messages.NewSQLiteRepository(tx)
		if _, err := repo.DeleteByConversation(ctx, conversationID); err != nil {
			return err
		}
		return repo.BulkInsert(ctx, msgs)
	})
	if err != nil {
		return 0, err
	}

	if _, err := c.PruneExpired(ctx); err != nil {
		c.logger.Warn(ctx, "cache retention sweep failed", "error", err)
	}

	return len(msgs), nil
}

// Recent returns up to limit cached messages for the conversation in
// ascending chronological order (oldest first). The store is queried
// newest-first so the limit bounds efficiently, then the page is reversed.
// limit <= 0 falls back to the default page size.
func (c *Cache) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = common.MessagePageSize
	}

	repo := messages.NewSQLiteRepository(c.db)
	page, err := repo.Recent(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// PruneExpired deletes every cached message older than the retention window,
// across all conversations, and returns the number deleted.
func (c *Cache) PruneExpired(ctx context.Context) (int64, error) {
	repo := messages.NewSQLiteRepository(c.db)
	return repo.DeleteOlderThan(ctx, c.now().Add(-RetentionWindow))
}

// Size returns the total number of cached messages.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	return messages.NewSQLiteRepository(c.db).CountAll(ctx)
}

// ConversationSize returns the cached message count for one conversation.
func (c *Cache) ConversationSize(ctx context.Context, conversationID string) (int64, error) {
	return messages.NewSQLiteRepository(c.db).CountByConversation(ctx, conversationID)
}

// ClearConversation removes all cached rows for one conversation.
func (c *Cache) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	return messages.NewSQLiteRepository(c.db).DeleteByConversation(ctx, conversationID)
}

// ClearAll empties the cache.
func (c *Cache) ClearAll(ctx context.Context) (int64, error) {
	return messages.NewSQLiteRepository(c.db).DeleteAll(ctx)
}

// EstimateStorageUsage sums encoded ciphertext and nonce lengths plus a
// fixed per-row overhead. It approximates the logical payload footprint,
// not the storage engine's page accounting.
func (c *Cache) EstimateStorageUsage(ctx context.Context) (int64, error) {
	bytes, rows, err := messages.NewSQLiteRepository(c.db).PayloadStats(ctx)
	if err != nil {
		return 0, err
	}
	return bytes + rows*rowOverheadBytes, nil
}

// CheckQuota reports how close the cache is to its soft limit. Percentage is
// cached-row-count over (per-conversation cap × assumed conversation count);
// Approaching turns true above 80%. Advisory only, nothing is enforced.
func (c *Cache) CheckQuota(ctx context.Context) (QuotaStatus, error) {
	count, err := c.Size(ctx)
	if err != nil {
		return QuotaStatus{}, err
	}

	pct := float64(count) / float64(perConversationCap*assumedConversations)
	return QuotaStatus{
		Approaching: pct > quotaWarningThreshold,
		Percentage:  pct,
	}, nil
}
