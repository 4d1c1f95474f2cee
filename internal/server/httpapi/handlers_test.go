package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/auth"
	servermodels "github.com/nkrylov/cipherchat/internal/server/models"
	"github.com/nkrylov/cipherchat/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type fakeUserService struct {
	loginErr error
}

func (f *fakeUserService) Register(ctx context.Context, username string, salt, verifier []byte) (*servermodels.User, error) {
	return &servermodels.User{ID: "u-1", UserName: username}, nil
}
func (f *fakeUserService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	return []byte("salt"), nil
}
func (f *fakeUserService) Login(ctx context.Context, userName string, verifier []byte) (*services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{UserID: "u-1", AccessToken: "at", RefreshToken: "rt"}, nil
}
func (f *fakeUserService) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	return &services.TokenPair{UserID: "u-1", AccessToken: "at2", RefreshToken: "rt2"}, nil
}

type fakeMessageService struct {
	sentBy    string
	edited    bool
	deleted   bool
	messageID string
}

func (f *fakeMessageService) OpenConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error) {
	return &models.Conversation{ID: "c-1", UserA: userID, UserB: peerID}, nil
}
func (f *fakeMessageService) Send(ctx context.Context, senderID, conversationID, ct, nonce string) (*models.Message, error) {
	f.sentBy = senderID
	return &models.Message{ID: "m-1", ConversationID: conversationID, SenderID: senderID}, nil
}
func (f *fakeMessageService) Edit(ctx context.Context, userID, messageID, ct, nonce string) (*models.Message, error) {
	f.edited = true
	f.messageID = messageID
	return &models.Message{ID: messageID, Edited: true}, nil
}
func (f *fakeMessageService) Delete(ctx context.Context, userID, messageID string) (*models.Message, error) {
	f.deleted = true
	f.messageID = messageID
	return &models.Message{ID: messageID, Deleted: true}, nil
}
func (f *fakeMessageService) List(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	return nil, nil
}

func newTestServer(t *testing.T, users UserService, messages MessageService) *Server {
	t.Helper()
	return NewServer(":0", logging.NewNopLogger(), testSecret, users, nil, messages, nil, nil, nil)
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestHandleLogin_Success(t *testing.T) {
	srv := newTestServer(t, &fakeUserService{}, nil)

	body, _ := json.Marshal(map[string]any{"username": "alice", "verifier": []byte("v")})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "u-1", out["user_id"])
	assert.Equal(t, "at", out["access_token"])
}

func TestHandleLogin_Unauthorized(t *testing.T) {
	srv := newTestServer(t, &fakeUserService{loginErr: common.ErrorUnauthorized}, nil)

	body, _ := json.Marshal(map[string]any{"username": "alice", "verifier": []byte("bad")})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRegister_BadRequest(t *testing.T) {
	srv := newTestServer(t, &fakeUserService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader([]byte(`{"username":""}`)))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	srv := newTestServer(t, &fakeUserService{}, &fakeMessageService{})

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessage_UsesAuthenticatedSender(t *testing.T) {
	msgs := &fakeMessageService{}
	srv := newTestServer(t, &fakeUserService{}, msgs)

	body, _ := json.Marshal(map[string]string{
		"conversation_id":       "c-1",
		"encrypted_content":     "ct",
		"initialization_vector": "iv",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	req.Header.Set(common.AccessTokenHeaderName, bearerToken(t, "u-42"))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u-42", msgs.sentBy)
}

func TestPatchMessage_DispatchesEditAndDelete(t *testing.T) {
	msgs := &fakeMessageService{}
	srv := newTestServer(t, &fakeUserService{}, msgs)
	token := bearerToken(t, "u-1")

	edit, _ := json.Marshal(map[string]any{"encrypted_content": "ct", "initialization_vector": "iv"})
	req := httptest.NewRequest(http.MethodPatch, "/api/messages/m-7", bytes.NewReader(edit))
	req.Header.Set(common.AccessTokenHeaderName, token)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, msgs.edited)
	assert.Equal(t, "m-7", msgs.messageID)

	del, _ := json.Marshal(map[string]any{"deleted": true})
	req = httptest.NewRequest(http.MethodPatch, "/api/messages/m-8", bytes.NewReader(del))
	req.Header.Set(common.AccessTokenHeaderName, token)
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, msgs.deleted)
	assert.Equal(t, "m-8", msgs.messageID)
}

func TestListMessages_EmptyIsJSONArray(t *testing.T) {
	srv := newTestServer(t, &fakeUserService{}, &fakeMessageService{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/c-1/messages?limit=10", nil)
	req.Header.Set(common.AccessTokenHeaderName, bearerToken(t, "u-1"))
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
