package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/api"
	"github.com/glendonC/mallards/internal/config"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/logging"
	"github.com/glendonC/mallards/internal/mq"
	"github.com/glendonC/mallards/internal/service"
	"github.com/glendonC/mallards/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.New("alignment-engine", cfg.LogLevel)

	settings, _, err := config.LoadProfile(cfg.EngineProfilePath, cfg.Engine)
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

	reader := mq.NewReader(cfg.KafkaBrokers, cfg.KafkaTopicIngested, cfg.ConsumerGroupPrefix+"-alignment-engine")
	defer reader.Close()

	writer := mq.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
	defer writer.Close()

	reporter := &service.Reporter{
		Loader: storage.NewRepository(dbPool),
		Memo:   align.NewMemo(0),
		Log:    logger,
	}

	go api.ServeSidecar(ctx, cfg.MetricsAddr, "alignment-engine", logger)

	logger.Info("consuming", "in", cfg.KafkaTopicIngested, "out", cfg.KafkaTopicEvents, "timeRange", settings.TimeRange, "detector", settings.Detector)
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

		notice, err := mq.ParseMessageJSON[contracts.IngestNotice](msg)
		if err != nil {
			logger.Warn("decode ingest notice", "err", err)
			continue
		}

		report, superseded, err := reporter.DatasetReport(ctx, notice.DatasetID, settings, false)
		if err != nil {
			logger.Error("recompute failed", "dataset", notice.DatasetID, "err", err)
			continue
		}
		if superseded {
			logger.Debug("dropping superseded report", "dataset", notice.DatasetID)
			continue
		}

		sent, err := mq.PublishEvents(ctx, writer, report)
		if err != nil {
			var temporary kafka.Error
			if errors.As(err, &temporary) {
				logger.Warn("kafka temporary error", "err", temporary)
			} else {
				logger.Error("publish error", "err", err)
			}
			continue
		}

		logger.Info("recomputed", "dataset", notice.DatasetID, "version", notice.Version, "score", report.CurrentScore, "events", sent)
	}
}
