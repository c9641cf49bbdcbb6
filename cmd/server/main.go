// Command server runs the minichat relay: a WebSocket chat server with
// room-scoped broadcast, durable message history, and presence records.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hanbit0/minichat/internal/server"
	"github.com/hanbit0/minichat/internal/store"
)

func main() {
	// Load local .env (dev only).
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := newLogger(cfg)

	history, err := store.OpenBadgerHistory(cfg.BadgerFilepath, logger)
	if err != nil {
		logger.Error("failed to open message store", "path", cfg.BadgerFilepath, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Warn("error closing message store", "err", err)
		}
	}()

	presence, err := store.OpenSQLitePresence(cfg.SQLiteFilepath)
	if err != nil {
		logger.Error("failed to open presence store", "path", cfg.SQLiteFilepath, "err", err)
		os.Exit(1)
	}
	if err := presence.ResetActive(); err != nil {
		logger.Warn("failed to reset presence states", "err", err)
	}

	hub := server.NewHub(cfg, history, presence, logger)
	server.StartHub(hub)

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	_ = server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", "err", err)
	}
}

// newLogger builds the process logger: JSON at the configured level in prod,
// text otherwise.
func newLogger(cfg *server.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
