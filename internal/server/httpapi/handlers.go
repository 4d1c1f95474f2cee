package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/keyring"
	"github.com/nkrylov/cipherchat/internal/models"
	"github.com/nkrylov/cipherchat/internal/server/services"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Warn(context.Background(), "encoding response", "error", err)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrRefreshTokenExpired):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func tokenResponse(pair *services.TokenPair) map[string]string {
	return map[string]string{
		"user_id":       pair.UserID,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	}
}

// --- auth ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Salt     []byte `json:"salt"`
		Verifier []byte `json:"verifier"`
	}
	if err := decode(r, &in); err != nil || in.Username == "" || len(in.Salt) == 0 || len(in.Verifier) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if _, err := s.users.Register(r.Context(), in.Username, in.Salt, in.Verifier); err != nil {
		s.logger.Warn(r.Context(), "registration failed", "user", in.Username, "error", err)
		http.Error(w, "registration failed", http.StatusConflict)
		return
	}
	s.writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	salt, err := s.users.GetSalt(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]byte{"salt": salt})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Verifier []byte `json:"verifier"`
	}
	if err := decode(r, &in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pair, err := s.users.Login(r.Context(), in.Username, in.Verifier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &in); err != nil || in.RefreshToken == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse(pair))
}

// --- keys ---

func (s *Server) handlePublishKey(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PublicKeyJWK keyring.PublicKeyJWK `json:"public_key_jwk"`
		SaltBase64   string               `json:"salt_base64"`
	}
	if err := decode(r, &in); err != nil || in.SaltBase64 == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	record := &models.KeyRecord{
		UserID:       userIDFromContext(r.Context()),
		PublicKeyJWK: in.PublicKeyJWK,
		SaltBase64:   in.SaltBase64,
	}
	if err := s.keys.Publish(r.Context(), record); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	record, err := s.keys.GetActive(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// --- conversations and messages ---

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Peer string `json:"peer"`
	}
	if err := decode(r, &in); err != nil || in.Peer == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	conv, err := s.messages.OpenConversation(r.Context(), userIDFromContext(r.Context()), in.Peer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ConversationID       string `json:"conversation_id"`
		EncryptedContent     string `json:"encrypted_content"`
		InitializationVector string `json:"initialization_vector"`
	}
	if err := decode(r, &in); err != nil || in.ConversationID == "" || in.EncryptedContent == "" || in.InitializationVector == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	msg, err := s.messages.Send(r.Context(), userIDFromContext(r.Context()),
		in.ConversationID, in.EncryptedContent, in.InitializationVector)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handlePatchMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		EncryptedContent     string `json:"encrypted_content"`
		InitializationVector string `json:"initialization_vector"`
		Edited               bool   `json:"edited"`
		Deleted              bool   `json:"deleted"`
	}
	if err := decode(r, &in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	userID := userIDFromContext(r.Context())
	messageID := r.PathValue("id")

	var (
		msg *models.Message
		err error
	)
	switch {
	case in.Deleted:
		msg, err = s.messages.Delete(r.Context(), userID, messageID)
	case in.EncryptedContent != "" && in.InitializationVector != "":
		msg, err = s.messages.Edit(r.Context(), userID, messageID, in.EncryptedContent, in.InitializationVector)
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.messages.List(r.Context(), userIDFromContext(r.Context()), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// --- typing ---

func (s *Server) handleUpsertTyping(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ConversationID string `json:"conversation_id"`
		IsTyping       bool   `json:"is_typing"`
	}
	if err := decode(r, &in); err != nil || in.ConversationID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Typing is always recorded for the authenticated user; the user_id in
	// the body, if any, is ignored.
	if _, err := s.typing.Upsert(r.Context(), in.ConversationID, userIDFromContext(r.Context()), in.IsTyping); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteTyping(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := s.typing.Delete(r.Context(), conversationID, userIDFromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

// --- attachments ---

func (s *Server) handlePresignAttachment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ConversationID string `json:"conversation_id"`
		FileName       string `json:"file_name"`
		Size           int64  `json:"size"`
	}
	if err := decode(r, &in); err != nil || in.ConversationID == "" || in.FileName == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	record, putURL, err := s.attachments.PresignUpload(r.Context(), userIDFromContext(r.Context()),
		in.ConversationID, in.FileName, in.Size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"attachment_id": record.ID,
		"put_url":       putURL,
	})
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	getURL, err := s.attachments.PresignDownload(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"get_url": getURL})
}

// --- feed ---

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.feed.ServeWS(w, r, userIDFromContext(r.Context()))
}
