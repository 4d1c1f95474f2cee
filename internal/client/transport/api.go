// Package transport implements the client's network edge: an authenticated
// JSON API client for the remote store and a websocket change feed.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/keyring"
	"github.com/nkrylov/cipherchat/internal/models"
)

// Client talks to the remote store over authenticated JSON HTTP. It holds
// the token pair and transparently retries one request after refreshing an
// expired access token.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       string
}

// NewClient returns a Client for the given base URL, e.g. "http://host:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CurrentUserID implements realtime.Identity. Returns "" before login.
func (c *Client) CurrentUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// AccessToken returns the current access token, for the feed handshake.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

type tokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// doJSON performs one authenticated request. On 401 it refreshes the token
// pair once and retries, mirroring how an expiring session is resumed
// without surfacing to the caller.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	err := c.roundTrip(ctx, method, path, in, out)
	if err == nil || !isUnauthorized(err) {
		return err
	}

	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return err
	}

	var tokens tokenResponse
	if rerr := c.roundTrip(ctx, http.MethodPost, "/api/refresh",
		map[string]string{"refresh_token": refresh}, &tokens); rerr != nil {
		return err
	}
	c.setTokens(tokens.AccessToken, tokens.RefreshToken)

	return c.roundTrip(ctx, method, path, in, out)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

func isUnauthorized(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusUnauthorized
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.accessToken != "" {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+c.accessToken)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates an account. The salt/verifier pair is what the server
// stores for login checks; the password itself never travels.
func (c *Client) Register(ctx context.Context, username string, salt, verifier []byte) error {
	in := map[string]any{"username": username, "salt": salt, "verifier": verifier}
	return c.doJSON(ctx, http.MethodPost, "/api/register", in, nil)
}

// GetAuthSalt fetches the login salt for a username, needed to compute the
// verifier client-side before login.
func (c *Client) GetAuthSalt(ctx context.Context, username string) ([]byte, error) {
	var out struct {
		Salt []byte `json:"salt"`
	}
	path := "/api/salt?username=" + url.QueryEscape(username)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Salt, nil
}

// Login exchanges a username/verifier for a token pair and remembers it.
func (c *Client) Login(ctx context.Context, username string, verifier []byte) error {
	var tokens tokenResponse
	in := map[string]any{"username": username, "verifier": verifier}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", in, &tokens); err != nil {
		return err
	}
	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.userID = tokens.UserID
	c.mu.Unlock()
	return nil
}

// PublishKey uploads the user's public key record (JWK + derivation salt).
func (c *Client) PublishKey(ctx context.Context, jwk keyring.PublicKeyJWK, saltBase64 string) error {
	in := map[string]any{"public_key_jwk": jwk, "salt_base64": saltBase64}
	return c.doJSON(ctx, http.MethodPut, "/api/keys", in, nil)
}

// GetKey fetches another user's active key record.
func (c *Client) GetKey(ctx context.Context, userID string) (*models.KeyRecord, error) {
	var out models.KeyRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/keys/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenConversation finds or creates the conversation with a peer.
func (c *Client) OpenConversation(ctx context.Context, peerUserID string) (*models.Conversation, error) {
	var out models.Conversation
	in := map[string]string{"peer": peerUserID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage persists an encrypted payload as a new message row.
func (c *Client) SendMessage(ctx context.Context, conversationID, ciphertext, nonce string) (*models.Message, error) {
	var out models.Message
	in := map[string]string{
		"conversation_id":       conversationID,
		"encrypted_content":     ciphertext,
		"initialization_vector": nonce,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessage replaces a message's payload, setting the edited flag.
func (c *Client) EditMessage(ctx context.Context, messageID, ciphertext, nonce string) (*models.Message, error) {
	var out models.Message
	in := map[string]any{
		"encrypted_content":     ciphertext,
		"initialization_vector": nonce,
		"edited":                true,
	}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage soft-deletes a message (the row stays, flagged).
func (c *Client) DeleteMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var out models.Message
	in := map[string]any{"deleted": true}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages fetches the newest page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = common.MessagePageSize
	}
	var out []models.Message
	path := fmt.Sprintf("/api/conversations/%s/messages?limit=%d", url.PathEscape(conversationID), limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertTyping implements realtime.TypingPublisher.
func (c *Client) UpsertTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	in := map[string]any{"conversation_id": conversationID, "user_id": userID, "is_typing": isTyping}
	return c.doJSON(ctx, http.MethodPut, "/api/typing", in, nil)
}

// DeleteTyping implements realtime.TypingPublisher.
func (c *Client) DeleteTyping(ctx context.Context, conversationID, userID string) error {
	path := "/api/typing?conversation_id=" + url.QueryEscape(conversationID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// PresignAttachment asks for a presigned PUT URL for an encrypted blob.
func (c *Client) PresignAttachment(ctx context.Context, conversationID, fileName string, size int64) (attachmentID, putURL string, err error) {
	var out struct {
		AttachmentID string `json:"attachment_id"`
		PutURL       string `json:"put_url"`
	}
	in := map[string]any{"conversation_id": conversationID, "file_name": fileName, "size": size}
	if err := c.doJSON(ctx, http.MethodPost, "/api/attachments/presign", in, &out); err != nil {
		return "", "", err
	}
	return out.AttachmentID, out.PutURL, nil
}

// AttachmentURL asks for a presigned GET URL for a stored blob.
func (c *Client) AttachmentURL(ctx context.Context, attachmentID string) (string, error) {
	var out struct {
		GetURL string `json:"get_url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/attachments/"+url.PathEscape(attachmentID)+"/url", nil, &out); err != nil {
		return "", err
	}
	return out.GetURL, nil
}

// DownloadBlob GETs an encrypted blob from a presigned URL.
func (c *Client) DownloadBlob(ctx context.Context, getURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &statusError{code: resp.StatusCode, body: string(raw)}
	}
	return io.ReadAll(resp.Body)
}

// UploadBlob PUTs an encrypted blob to a presigned URL.
func (c *Client) UploadBlob(ctx context.Context, putURL string, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}
	return nil
}
