// cmd/historian/main.go drains the game event queue from Redis into Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/crusty/internal/broker"
	"github.com/jason-s-yu/crusty/internal/config"
	"github.com/jason-s-yu/crusty/internal/database"
	"github.com/jason-s-yu/crusty/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadHistorian()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := broker.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	opts := historian.Options{BatchSize: cfg.BatchSize, FlushDelay: cfg.FlushDelay}
	h := historian.New(
		&historian.RedisQueue{Client: rdb, Name: cfg.EventQueueName},
		&historian.PostgresStore{DB: pool},
		opts,
		logger,
	)

	logger.Infof("historian started on %s (batch %d, flush every %s)", cfg.EventQueueName, cfg.BatchSize, cfg.FlushDelay)
	if err := h.Run(ctx); err != nil {
		logger.Errorf("historian stopped: %v", err)
	}
	logger.Info("historian shutdown complete")
}
