package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glendonC/mallards/internal/api"
	"github.com/glendonC/mallards/internal/config"
	"github.com/glendonC/mallards/internal/ingest"
	"github.com/glendonC/mallards/internal/logging"
	"github.com/glendonC/mallards/internal/mq"
	"github.com/glendonC/mallards/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.New("ingest", cfg.LogLevel)

	_, columns, err := config.LoadProfile(cfg.EngineProfilePath, cfg.Engine)
	if err != nil {
		logger.Error("engine profile error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database error", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := storage.RunMigrations(ctx, dbPool); err != nil {
		logger.Error("migration error", "err", err)
		os.Exit(1)
	}

	writer := mq.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopicIngested)
	defer writer.Close()

	handlers := &api.IngestHandlers{
		Store:     storage.NewRepository(dbPool),
		Publisher: writer,
		Mapping:   ingest.DefaultMapping().Overlay(ingest.Mapping(columns)),
		Log:       logger,
	}

	router := api.NewRouter("ingest", 0, handlers)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr, "topic", cfg.KafkaTopicIngested)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
