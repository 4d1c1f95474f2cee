package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/cryptox"
	"github.com/nkrylov/cipherchat/internal/keyring"
	"github.com/nkrylov/cipherchat/internal/models"
)

var errNoConversation = errors.New("no open conversation, run 'open' first")

// Open finds or creates the conversation with a peer and derives the shared
// message key from our private key and the peer's published public key.
func (a *App) Open(ctx context.Context) error {
	if !a.isLoggedIn() {
		return common.ErrorUnauthorized
	}
	peer, err := getSimpleText(a.reader, "Enter peer user id", os.Stdout)
	if err != nil {
		return err
	}

	record, err := a.api.GetKey(ctx, peer)
	if err != nil {
		return err
	}
	peerPub, err := keyring.ParsePublicJWK(record.PublicKeyJWK)
	if err != nil {
		return err
	}
	key, err := cryptox.DeriveSharedSecret(a.keyPair.Private, peerPub)
	if err != nil {
		return err
	}

	conv, err := a.api.OpenConversation(ctx, peer)
	if err != nil {
		return err
	}

	a.convID = conv.ID
	a.peerID = peer
	a.convKey = key
	fmt.Printf("Conversation %s opened\n", conv.ID)
	return nil
}

// Send encrypts a line of text and posts it. If the server is unreachable
// the ciphertext goes to the outbox and is retried on the next login or
// successful send.
func (a *App) Send(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}
	text, err := getSimpleText(a.reader, "Message", os.Stdout)
	if err != nil {
		return err
	}

	payload, err := cryptox.Encrypt(text, a.convKey)
	if err != nil {
		return err
	}

	if _, err := a.api.SendMessage(ctx, a.convID, payload.Ciphertext, payload.Nonce); err != nil {
		a.logger.Warn(ctx, "send failed, queueing for retry", "error", err)
		return a.repos.Outbox.Enqueue(ctx, models.Message{
			ConversationID:       a.convID,
			EncryptedContent:     payload.Ciphertext,
			InitializationVector: payload.Nonce,
		})
	}
	a.flushOutbox(ctx)
	return nil
}

// flushOutbox replays queued messages in enqueue order. A failure stops the
// replay; the rest stay queued.
func (a *App) flushOutbox(ctx context.Context) {
	queued, err := a.repos.Outbox.All(ctx)
	if err != nil {
		a.logger.Warn(ctx, "reading outbox", "error", err)
		return
	}
	for _, m := range queued {
		if _, err := a.api.SendMessage(ctx, m.ConversationID, m.EncryptedContent, m.InitializationVector); err != nil {
			a.logger.Warn(ctx, "outbox replay failed", "error", err)
			return
		}
		if err := a.repos.Outbox.Delete(ctx, m.ID); err != nil {
			a.logger.Warn(ctx, "removing replayed message from outbox", "error", err)
			return
		}
	}
}

// Read syncs the newest page of the conversation into the cache and prints
// it oldest first. When the server is unreachable it falls back to whatever
// the cache holds.
func (a *App) Read(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}

	remote, err := a.api.ListMessages(ctx, a.convID, common.MessagePageSize)
	if err != nil {
		a.logger.Warn(ctx, "server unreachable, reading from cache", "error", err)
	} else {
		if _, err := a.cache.ReplaceConversation(ctx, a.convID, remote); err != nil {
			a.logger.Warn(ctx, "caching messages", "error", err)
		}
		if err := a.repos.Metadata.Set(ctx, "last_synced_"+a.convID, time.Now().UTC().Format(time.RFC3339)); err != nil {
			a.logger.Warn(ctx, "recording sync time", "error", err)
		}
	}

	msgs, err := a.cache.Recent(ctx, a.convID, common.MessagePageSize)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		a.printMessage(m)
	}
	return nil
}

// printMessage renders one message. Decryption failures render a
// placeholder instead of aborting the listing, so one corrupt row cannot
// hide the rest of the history.
func (a *App) printMessage(m models.Message) {
	if m.Deleted {
		fmt.Printf("[%s] %s: <deleted>\n", m.CreatedAt.Format(time.RFC3339), m.SenderID)
		return
	}
	text, err := cryptox.Decrypt(m.EncryptedContent, m.InitializationVector, a.convKey)
	if err != nil {
		text = "<undecryptable>"
	}
	suffix := ""
	if m.Edited {
		suffix = " (edited)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format(time.RFC3339), m.SenderID, text, suffix)
}

// Watch subscribes to inserts, updates and typing for the open conversation
// and streams them until the user presses Enter.
func (a *App) Watch(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}

	unsubIns, err := a.session.SubscribeToMessages(ctx, a.convID, a.printMessage)
	if err != nil {
		return err
	}
	defer unsubIns()

	unsubUpd, err := a.session.SubscribeToMessageUpdates(ctx, a.convID, func(newRow, _ models.Message) {
		a.printMessage(newRow)
	})
	if err != nil {
		return err
	}
	defer unsubUpd()

	unsubTyp, err := a.session.SubscribeToTyping(ctx, a.convID, func(userID string, isTyping bool) {
		if isTyping {
			fmt.Printf("%s is typing...\n", userID)
		} else {
			fmt.Printf("%s stopped typing\n", userID)
		}
	})
	if err != nil {
		return err
	}
	defer unsubTyp()

	fmt.Println("Watching (press Enter to stop)")
	_, _ = a.reader.ReadString('\n')
	return nil
}

// Typing publishes a typing indicator for the open conversation. The session
// debounces repeated "on" signals.
func (a *App) Typing(ctx context.Context, on bool) error {
	if a.convKey == nil {
		return errNoConversation
	}
	a.session.SetTypingStatus(ctx, a.convID, on)
	return nil
}

// Edit replaces a message's content in place, flagging it as edited.
func (a *App) Edit(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}
	id, err := getSimpleText(a.reader, "Message id", os.Stdout)
	if err != nil {
		return err
	}
	text, err := getSimpleText(a.reader, "New text", os.Stdout)
	if err != nil {
		return err
	}
	payload, err := cryptox.Encrypt(text, a.convKey)
	if err != nil {
		return err
	}
	_, err = a.api.EditMessage(ctx, id, payload.Ciphertext, payload.Nonce)
	return err
}

// Delete soft-deletes a message; the row stays so ordering is preserved.
func (a *App) Delete(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}
	id, err := getSimpleText(a.reader, "Message id", os.Stdout)
	if err != nil {
		return err
	}
	_, err = a.api.DeleteMessage(ctx, id)
	return err
}

// Quota prints local cache usage against the estimated budget.
func (a *App) Quota(ctx context.Context) error {
	status, err := a.cache.CheckQuota(ctx)
	if err != nil {
		return err
	}
	bytes, err := a.cache.EstimateStorageUsage(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cache usage: ~%d bytes, %.0f%% of budget", bytes, status.Percentage*100)
	if status.Approaching {
		fmt.Print(" (approaching limit)")
	}
	fmt.Println()
	return nil
}
