package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/config"
	"github.com/Wuchinator/watchtime/internal/history"
	"github.com/Wuchinator/watchtime/internal/user"
	"github.com/Wuchinator/watchtime/pkg/kafka"
	"github.com/Wuchinator/watchtime/pkg/logger"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	groupID := cfg.Kafka.Topic + "-history"
	log = logger.WithService(log, "history-worker")
	log.Info("Starting History Worker",
		zap.String("environment", cfg.Environment),
		zap.String("consumer_group", groupID),
	)

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	historyService := history.NewService(history.NewRepository(db), user.NewRepository(db, log), log)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.Topic},
		GroupID:           groupID,
		AutoCommit:        true,
		CommitInterval:    1 * time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceStrategy: "sticky",
	}, historyService.HandleMessage, log)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-consumer.WaitReady():
		log.Info("Kafka consumer is ready and consuming messages")
		<-quit
	case <-quit:
	}

	log.Info("Shutting down gracefully...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("consumer did not stop in time")
	}

	log.Info("History Worker stopped")
}
