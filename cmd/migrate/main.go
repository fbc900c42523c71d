package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/config"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/postgres"
	"github.com/joho/godotenv"
)

// usage: migrate [up|down|status|redo|reset]
func main() {
	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "migrate"}).Error(context.Background(), "config", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{ServiceName: "migrate", Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = log.WithField(ctx, "command", command)

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error(ctx, "db connect", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, command); err != nil {
		log.Error(ctx, "migrate", err)
		os.Exit(1)
	}
	log.Info(ctx, "migrations applied")
}
