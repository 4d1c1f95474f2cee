// Package httpapi exposes the server's JSON API and the websocket feed
// endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
	servermodels "github.com/nkrylov/cipherchat/internal/server/models"
	"github.com/nkrylov/cipherchat/internal/server/services"
)

// Service interfaces consumed by the handlers. The concrete services in the
// services package satisfy them; tests substitute fakes.
type UserService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*servermodels.User, error)
	GetSalt(ctx context.Context, userName string) ([]byte, error)
	Login(ctx context.Context, userName string, verifier []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type KeyService interface {
	Publish(ctx context.Context, record *models.KeyRecord) error
	GetActive(ctx context.Context, userID string) (*models.KeyRecord, error)
}

type MessageService interface {
	OpenConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error)
	Send(ctx context.Context, senderID, conversationID, ciphertext, nonce string) (*models.Message, error)
	Edit(ctx context.Context, userID, messageID, ciphertext, nonce string) (*models.Message, error)
	Delete(ctx context.Context, userID, messageID string) (*models.Message, error)
	List(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error)
}

type TypingService interface {
	Upsert(ctx context.Context, conversationID, userID string, isTyping bool) (*models.TypingIndicator, error)
	Delete(ctx context.Context, conversationID, userID string) error
}

type AttachmentService interface {
	PresignUpload(ctx context.Context, uploaderID, conversationID, fileName string, size int64) (*models.Attachment, string, error)
	PresignDownload(ctx context.Context, attachmentID string) (string, error)
}

// FeedHandler serves the websocket feed for an authenticated user.
type FeedHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

type Server struct {
	addr      string
	logger    logging.Logger
	jwtSecret []byte

	users       UserService
	keys        KeyService
	messages    MessageService
	typing      TypingService
	attachments AttachmentService
	feed        FeedHandler

	httpServer *http.Server
}

func NewServer(addr string, logger logging.Logger, jwtSecret []byte,
	users UserService, keys KeyService, messages MessageService,
	typing TypingService, attachments AttachmentService, feed FeedHandler) *Server {
	return &Server{
		addr:        addr,
		logger:      logger,
		jwtSecret:   jwtSecret,
		users:       users,
		keys:        keys,
		messages:    messages,
		typing:      typing,
		attachments: attachments,
		feed:        feed,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("GET /api/salt", s.handleGetSalt)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux.Handle("PUT /api/keys", s.requireAuth(s.handlePublishKey))
	mux.Handle("GET /api/keys/{userID}", s.requireAuth(s.handleGetKey))
	mux.Handle("POST /api/conversations", s.requireAuth(s.handleOpenConversation))
	mux.Handle("GET /api/conversations/{id}/messages", s.requireAuth(s.handleListMessages))
	mux.Handle("POST /api/messages", s.requireAuth(s.handleSendMessage))
	mux.Handle("PATCH /api/messages/{id}", s.requireAuth(s.handlePatchMessage))
	mux.Handle("PUT /api/typing", s.requireAuth(s.handleUpsertTyping))
	mux.Handle("DELETE /api/typing", s.requireAuth(s.handleDeleteTyping))
	mux.Handle("POST /api/attachments/presign", s.requireAuth(s.handlePresignAttachment))
	mux.Handle("GET /api/attachments/{id}/url", s.requireAuth(s.handleAttachmentURL))

	mux.Handle("GET /ws", s.requireAuth(s.handleFeed))

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
