// Package server initializes and runs the messaging server. It opens the
// database, runs migrations, wires repositories, services and the websocket
// hub together, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/server/config"
	"github.com/nkrylov/cipherchat/internal/server/httpapi"
	"github.com/nkrylov/cipherchat/internal/server/hub"
	"github.com/nkrylov/cipherchat/internal/server/repositories/repomanager"
	"github.com/nkrylov/cipherchat/internal/server/services"
)

const typingSweepInterval = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	typingService *services.TypingService
	httpServer    *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	conversations := rm.Conversations(db)
	feed := hub.NewHub(logger, func(ctx context.Context, userID, conversationID string) bool {
		conv, err := conversations.Get(ctx, conversationID)
		if err != nil {
			return false
		}
		return conv.UserA == userID || conv.UserB == userID
	})

	userService := services.NewUserService(db, rm, c)
	keyService := services.NewKeyService(db, rm)
	messageService := services.NewMessageService(db, rm, feed)
	typingService := services.NewTypingService(db, rm, feed, logger)
	attachmentService := services.NewAttachmentService(db, rm, c)

	httpServer := httpapi.NewServer(c.EndpointAddr, logger, []byte(c.SecretKey),
		userService, keyService, messageService, typingService, attachmentService, feed)

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		typingService: typingService,
		httpServer:    httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.typingService.StartSweep(ctx, typingSweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
