package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/cryptox"
)

// attachmentNote is what travels inside the encrypted message body when a
// file is shared: the blob's id plus the one-off key that encrypted it. The
// blob itself never sees the conversation key.
type attachmentNote struct {
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
	Key          string `json:"key"`
	Nonce        string `json:"nonce"`
}

// SendFile encrypts a file under a fresh random key, uploads the ciphertext
// to object storage via a presigned URL, and sends the key material to the
// peer inside a normal encrypted message.
func (a *App) SendFile(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}
	path, err := getSimpleText(a.reader, "File path", os.Stdout)
	if err != nil {
		return err
	}
	plain, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	blobKey, rawKey, err := cryptox.NewRandomKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(rawKey)

	ciphertext, nonce, err := cryptox.EncryptBytes(plain, blobKey)
	if err != nil {
		return err
	}

	fileName := filepath.Base(path)
	attachmentID, putURL, err := a.api.PresignAttachment(ctx, a.convID, fileName, int64(len(ciphertext)))
	if err != nil {
		return err
	}
	if err := a.api.UploadBlob(ctx, putURL, ciphertext); err != nil {
		return err
	}

	note, err := json.Marshal(attachmentNote{
		AttachmentID: attachmentID,
		FileName:     fileName,
		Key:          base64.StdEncoding.EncodeToString(rawKey),
		Nonce:        base64.StdEncoding.EncodeToString(nonce),
	})
	if err != nil {
		return err
	}

	payload, err := cryptox.Encrypt(string(note), a.convKey)
	if err != nil {
		return err
	}
	if _, err := a.api.SendMessage(ctx, a.convID, payload.Ciphertext, payload.Nonce); err != nil {
		return err
	}
	fmt.Printf("Sent %s as attachment %s\n", fileName, attachmentID)
	return nil
}

// FetchFile downloads and decrypts an attachment described by a previously
// received attachment note (pasted as JSON) and writes it to disk.
func (a *App) FetchFile(ctx context.Context) error {
	if a.convKey == nil {
		return errNoConversation
	}
	raw, err := getSimpleText(a.reader, "Attachment note (JSON)", os.Stdout)
	if err != nil {
		return err
	}
	var note attachmentNote
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return err
	}

	rawKey, err := base64.StdEncoding.DecodeString(note.Key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(rawKey)
	nonce, err := base64.StdEncoding.DecodeString(note.Nonce)
	if err != nil {
		return err
	}
	blobKey, err := cryptox.KeyFromBytes(rawKey)
	if err != nil {
		return err
	}

	getURL, err := a.api.AttachmentURL(ctx, note.AttachmentID)
	if err != nil {
		return err
	}
	ciphertext, err := a.api.DownloadBlob(ctx, getURL)
	if err != nil {
		return err
	}
	plain, err := cryptox.DecryptBytes(ciphertext, nonce, blobKey)
	if err != nil {
		return err
	}

	if err := os.WriteFile(note.FileName, plain, 0o600); err != nil {
		return err
	}
	fmt.Printf("Saved %s (%d bytes)\n", note.FileName, len(plain))
	return nil
}
