package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-restaurant-orders/internal/config"
	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/ariefcatur/go-restaurant-orders/internal/relay"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "status-relay"}).Error(context.Background(), "config", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{ServiceName: cfg.ServiceName + "-relay", Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error(ctx, "redis", err)
		os.Exit(1)
	}
	defer rdb.Close()

	svc := &relay.Service{
		Redis:       rdb,
		Cache:       &redisx.StatusCache{Redis: rdb},
		Log:         log,
		ServiceName: cfg.ServiceName + "-relay",
	}
	go svc.RunHeartbeats(ctx, cfg.Tracker.HeartbeatInterval)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Relay.Group, orders.TopicOrderStatusChanged, cfg.Relay.Workers, log)
	log.Info(log.WithFields(ctx, map[string]any{
		"group": cfg.Relay.Group, "topic": orders.TopicOrderStatusChanged, "workers": cfg.Relay.Workers,
	}), "status relay started")
	if err := cons.Start(ctx, svc.HandleStatusChanged); err != nil && ctx.Err() == nil {
		log.Error(ctx, "consumer exit", err)
		os.Exit(1)
	}
	log.Info(context.Background(), "status relay stopped")
}
