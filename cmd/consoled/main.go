// CLAUDE:SUMMARY Entry point for the console HTTP service — config, slog JSON logging, state DB, live feed, graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatdesk/console/config"
	"github.com/chatdesk/console/convstore"
	"github.com/chatdesk/console/dbwatch"
	"github.com/chatdesk/console/gateway"
	"github.com/chatdesk/console/livefeed"
	"github.com/chatdesk/console/onboarding"
	"github.com/chatdesk/console/server"
	"github.com/chatdesk/console/statestore"
	"github.com/chatdesk/console/wshub"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// State DB.
	db, err := statestore.Open(cfg.StateDB)
	if err != nil {
		slog.Error("state db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := convstore.ApplySchema(db); err != nil {
		slog.Error("conversation schema", "error", err)
		os.Exit(1)
	}

	// Components.
	feed := livefeed.New(cfg.Activity, livefeed.WithLogger(logger))
	go feed.Run(ctx)

	hub := wshub.New(wshub.WithLogger(logger))

	// Webhook ingesters write the same database file; watch it so open
	// dashboards learn about conversations this process didn't create.
	watcher := dbwatch.New(db, dbwatch.Options{
		Interval: time.Second,
		Debounce: 300 * time.Millisecond,
		Logger:   logger,
	})
	go watcher.OnChange(ctx, func() error {
		hub.Broadcast("conversations.changed", nil)
		return nil
	})

	srv := server.New(
		gateway.New(cfg.BackendURL, gateway.WithLogger(logger)),
		feed,
		onboarding.New(statestore.New(db), cfg.Onboarding.TourSteps, onboarding.WithLogger(logger)),
		convstore.New(db, convstore.WithLogger(logger)),
		hub,
		server.WithLogger(logger),
	)
	go srv.RelaySamples(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("console listening",
		"addr", cfg.Listen, "backend", cfg.BackendURL, "state_db", cfg.StateDB)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server", "error", err)
		os.Exit(1)
	}
	slog.Info("console stopped")
}
