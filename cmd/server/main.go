package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/devbattle/devbattle/internal/config"
	"github.com/devbattle/devbattle/internal/database"
	"github.com/devbattle/devbattle/internal/handler/chat"
	"github.com/devbattle/devbattle/internal/handler/health"
	"github.com/devbattle/devbattle/internal/migrations"
	"github.com/devbattle/devbattle/internal/room"
	"github.com/devbattle/devbattle/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Real-time ---
	// One room service per process; every challenge room lives here.
	rooms := room.NewService(logger)
	lobby := chat.NewHandler(logger)

	// --- HTTP Server ---
	opts := server.Options{
		Addr:            cfg.HTTPAddr,
		SPADir:          cfg.SPADir,
		SessionTTL:      cfg.SessionTTL,
		CookieSecure:    cfg.CookieSecure,
		BroadcastOnJoin: cfg.BroadcastOnJoin,
	}
	srv := server.New(opts, logger, server.NewSQLiteStore(db), rooms, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
			"sqlite": database.Checker{DB: db},
			"schema": health.CheckerFunc(func(ctx context.Context) error {
				return schemaReady(ctx, db)
			}),
		}).Routes())
		r.Mount("/api/chat", lobby.Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "broadcast_on_join", cfg.BroadcastOnJoin)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// schemaReady fails until the challenges table is queryable.
func schemaReady(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM challenges").Scan(&n); err != nil {
		return fmt.Errorf("querying challenges: %w", err)
	}
	return nil
}
