package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glendonC/mallards/internal/alerting"
	"github.com/glendonC/mallards/internal/api"
	"github.com/glendonC/mallards/internal/config"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/logging"
	"github.com/glendonC/mallards/internal/mq"
	"github.com/glendonC/mallards/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.New("alert-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database error", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	reader := mq.NewReader(cfg.KafkaBrokers, cfg.KafkaTopicEvents, cfg.ConsumerGroupPrefix+"-alert-service")
	defer reader.Close()

	svc := &alerting.Service{
		Store:       storage.NewRepository(dbPool),
		MinSeverity: contracts.Severity(cfg.AlertMinSeverity),
		Cooldown:    cfg.AlertCooldown,
		Log:         logger,
	}

	go api.ServeSidecar(ctx, cfg.MetricsAddr, "alert-service", logger)

	logger.Info("consuming", "topic", cfg.KafkaTopicEvents, "minSeverity", cfg.AlertMinSeverity, "cooldown", cfg.AlertCooldown)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("shutting down")
				return
			}
			logger.Warn("read error", "err", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		notice, err := mq.ParseMessageJSON[contracts.EventNotice](msg)
		if err != nil {
			logger.Warn("decode event notice", "err", err)
			continue
		}

		if _, err := svc.Handle(ctx, notice); err != nil {
			logger.Error("handle event", "dataset", notice.DatasetID, "event", notice.Event.ID, "err", err)
		}
	}
}
