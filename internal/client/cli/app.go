// Package cli implements the interactive client: a small REPL over the
// remote store, the local cache and the realtime session.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/nkrylov/cipherchat/internal/client/cache"
	"github.com/nkrylov/cipherchat/internal/client/config"
	"github.com/nkrylov/cipherchat/internal/client/realtime"
	"github.com/nkrylov/cipherchat/internal/client/store"
	"github.com/nkrylov/cipherchat/internal/client/transport"
	"github.com/nkrylov/cipherchat/internal/cryptox"
	"github.com/nkrylov/cipherchat/internal/keyring"
	"github.com/nkrylov/cipherchat/internal/logging"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	api     *transport.Client
	feed    *transport.Feed
	session *realtime.Session
	repos   *store.Repositories
	cache   *cache.Cache
	deriver *keyring.Deriver

	userName string
	keyPair  *keyring.KeyPair

	// current conversation, set by the open command
	convID  string
	peerID  string
	convKey *cryptox.SymmetricKey

	reader *bufio.Reader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	repos, err := store.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	api := transport.NewClient(c.ServerURL)
	feed := transport.NewFeed(c.FeedURL, api.AccessToken, logger)

	return &App{
		config:  c,
		logger:  logger,
		api:     api,
		feed:    feed,
		session: realtime.NewSession(feed, api, api, logger),
		repos:   repos,
		cache:   cache.New(repos.DB, logger),
		deriver: keyring.NewDeriver(),
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.keyPair != nil
}

func (a *App) Run(ctx context.Context) {
	defer a.shutdown()
	a.Root(ctx)
}

func (a *App) shutdown() {
	a.session.Cleanup()
	if err := a.feed.Close(); err != nil {
		a.logger.Warn(context.Background(), "closing change feed", "error", err)
	}
	if err := a.repos.DB.Close(); err != nil {
		a.logger.Warn(context.Background(), "closing local database", "error", err)
	}
}
