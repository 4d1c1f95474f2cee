package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/logging"
	"github.com/nkrylov/cipherchat/internal/models"
)

// feedSub remembers everything needed to replay a subscription after a
// reconnect.
type feedSub struct {
	table   string
	filter  models.SubscriptionFilter
	handler func(models.ChangeEvent)
}

// Feed is the websocket change-feed client. It implements
// realtime.Transport: named channels carry row-level change events for one
// table and filter. On connection loss it reconnects with exponential
// backoff and replays every live subscription.
type Feed struct {
	wsURL   string
	tokenFn func() string
	logger  logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]feedSub
	closed bool

	writeMu sync.Mutex
}

// NewFeed returns a Feed for the given websocket URL
// (e.g. "ws://host:8080/ws"). tokenFn supplies the current access token at
// each (re)connect.
func NewFeed(wsURL string, tokenFn func() string, logger logging.Logger) *Feed {
	return &Feed{
		wsURL:   wsURL,
		tokenFn: tokenFn,
		logger:  logger,
		subs:    make(map[string]feedSub),
	}
}

// Connect dials the feed and starts the read loop. Call once after login.
func (f *Feed) Connect(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	go f.readLoop(ctx)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if token := f.tokenFn(); token != "" {
		header.Set(common.AccessTokenHeaderName, "Bearer "+token)
	}

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, f.wsURL, header)
		return err
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("feed dial: %w", err)
	}
	return conn, nil
}

// readLoop dispatches incoming frames and reconnects on failure, replaying
// the live subscriptions so callers never notice the gap.
func (f *Feed) readLoop(ctx context.Context) {
	for {
		f.mu.Lock()
		conn := f.conn
		closed := f.closed
		f.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			closed = f.closed
			f.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}

			f.logger.Warn(ctx, "feed connection lost, reconnecting", "error", err)
			if err := f.reconnect(ctx); err != nil {
				f.logger.Error(ctx, "feed reconnect failed", "error", err)
				return
			}
			continue
		}

		var frame models.FeedFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			f.logger.Warn(ctx, "bad feed frame", "error", err)
			continue
		}

		f.mu.Lock()
		sub, ok := f.subs[frame.Channel]
		f.mu.Unlock()
		if ok {
			sub.handler(frame.Change)
		}
	}
}

func (f *Feed) reconnect(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	replay := make(map[string]feedSub, len(f.subs))
	for name, sub := range f.subs {
		replay[name] = sub
	}
	f.mu.Unlock()

	for name, sub := range replay {
		if err := f.send(models.FeedRequest{
			Action: "subscribe", Channel: name, Table: sub.table, Filter: sub.filter,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) send(req models.FeedRequest) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("feed is not connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(req)
}

// Subscribe implements realtime.Transport. The channel name must be unique
// per logical subscription; reusing a name replaces the existing channel.
func (f *Feed) Subscribe(ctx context.Context, name, table string, filter models.SubscriptionFilter, handler func(models.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("feed is closed")
	}
	f.subs[name] = feedSub{table: table, filter: filter, handler: handler}
	f.mu.Unlock()

	if err := f.send(models.FeedRequest{Action: "subscribe", Channel: name, Table: table, Filter: filter}); err != nil {
		f.mu.Lock()
		delete(f.subs, name)
		f.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, name)
			f.mu.Unlock()
			if err := f.send(models.FeedRequest{Action: "unsubscribe", Channel: name}); err != nil {
				f.logger.Debug(ctx, "feed unsubscribe send failed", "channel", name, "error", err)
			}
		})
	}
	return cancel, nil
}

// Close tears the feed down. No handler fires after Close returns the
// connection closed.
func (f *Feed) Close() error {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
