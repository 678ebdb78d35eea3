package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-walkthrough/internal/catalog"
	"github.com/p-n-ai/pai-walkthrough/internal/chat"
	"github.com/p-n-ai/pai-walkthrough/internal/platform/cache"
	"github.com/p-n-ai/pai-walkthrough/internal/platform/config"
	"github.com/p-n-ai/pai-walkthrough/internal/platform/database"
	"github.com/p-n-ai/pai-walkthrough/internal/session"
	"github.com/p-n-ai/pai-walkthrough/internal/walkthrough"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	cat, err := catalog.Open(ctx, cfg.Graph.Source, cfg.Graph.Strict)
	if err != nil {
		return fmt.Errorf("loading questionnaires: %w", err)
	}
	if cfg.Graph.Default != "" {
		if err := cat.SetDefault(cfg.Graph.Default); err != nil {
			return fmt.Errorf("WALK_GRAPH_DEFAULT: %w", err)
		}
	}

	d := deps{catalog: cat, checks: map[string]healthChecker{}}

	var db *database.DB
	if cfg.HasDatabase() {
		db, err = database.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()
		d.checks["database"] = db
	}

	var c *cache.Cache
	if cfg.Store.Backend == config.StoreRedis {
		c, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connecting to cache: %w", err)
		}
		defer c.Close()
		d.checks["cache"] = c
	}

	store, events, err := newStore(ctx, cfg, db, c)
	if err != nil {
		return err
	}
	d.store = store

	engine := walkthrough.NewEngine(walkthrough.EngineConfig{
		Catalog: cat,
		Store:   store,
		Events:  events,
	})

	gw := chat.NewGateway()
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		gw.Register("telegram", tg)
	}
	if cfg.WebSocket.Enabled {
		d.ws = chat.NewWebSocketChannel(cfg.WebSocket.AllowedOrigins)
		gw.Register("websocket", d.ws)
	}

	if err := gw.StartAll(ctx, newHandler(ctx, engine, gw)); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(d),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "questionnaires", cat.Len(), "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listening: %w", err)
	}
	slog.Info("shutting down")

	if err := gw.StopAll(); err != nil {
		slog.Error("failed to stop channels", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newHandler answers each inbound message through the gateway it came from.
func newHandler(ctx context.Context, engine *walkthrough.Engine, gw *chat.Gateway) func(chat.InboundMessage) {
	return func(msg chat.InboundMessage) {
		if err := gw.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
			slog.Debug("failed to send typing indicator", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}

		reply, err := engine.ProcessMessage(ctx, msg)
		if err != nil {
			slog.Error("failed to process message", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
			return
		}
		if err := gw.Send(ctx, reply); err != nil {
			slog.Error("failed to send reply", "channel", reply.Channel, "user_id", reply.UserID, "error", err)
		}
	}
}

// newStore picks the session store and event logger for the configured
// backend. Events go to PostgreSQL whenever a database is configured; the
// events table does not reference the sessions table, so this holds for
// every session backend.
func newStore(ctx context.Context, cfg *config.Config, db *database.DB, c *cache.Cache) (session.Store, session.EventLogger, error) {
	var events session.EventLogger = session.NopEventLogger{}
	if db != nil {
		pg, err := session.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		events = session.NewPostgresEventLogger(db.Pool)
		if cfg.Store.Backend == config.StorePostgres {
			return pg, events, nil
		}
	}

	switch cfg.Store.Backend {
	case config.StoreRedis:
		store, err := session.NewRedisStore(c, time.Duration(cfg.Store.SessionTTL)*time.Minute)
		if err != nil {
			return nil, nil, err
		}
		return store, events, nil
	case config.StorePostgres:
		return nil, nil, fmt.Errorf("postgres store requires WALK_DATABASE_URL")
	default:
		slog.Warn("using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(), events, nil
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
