package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/metrics"
	"github.com/raterudder/esplus/pkg/server"
	"github.com/raterudder/esplus/pkg/storage"
	"github.com/raterudder/esplus/pkg/updater"
)

func main() {
	// init packages
	s := storage.Configured()
	m := updater.Configured(entity.NewRegistry(), updater.NewEventLog(0))

	// init server
	srv := server.Configured(m, s, m)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(log.Ctx(context.Background()))
	slog.Debug("logger configured", slog.String("level", level.String()))

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	entries, err := s.ListEntries(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list config entries", "error", err)
		os.Exit(1)
	}
	m.SetupAll(ctx, entries)

	if err := m.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start updater", "error", err)
		os.Exit(1)
	}
	defer m.Stop()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
