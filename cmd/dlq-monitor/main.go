package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jogardn/order-orchestrator/internal/config"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS must be set")
	}

	processor, err := events.NewDLQProcessor(cfg.KafkaBrokers, events.DLQOptions{
		GroupID:     cfg.DLQConsumerGroup,
		Replay:      cfg.DLQReplay,
		ReplayDelay: cfg.DLQReplayDelay,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}
	defer processor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.ProcessDLQ(ctx); err != nil {
			logger.WithError(err).Error("DLQ processing stopped")
		}
	}()

	logger.WithFields(logrus.Fields{
		"topic":  events.ShipmentStatusDLQTopic,
		"replay": cfg.DLQReplay,
	}).Info("DLQ monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-done:
	}

	logger.Info("Shutting down DLQ monitor...")
	cancel()
	<-done
}
