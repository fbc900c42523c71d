package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/cart"
	"github.com/ariefcatur/go-restaurant-orders/internal/catalog"
	"github.com/ariefcatur/go-restaurant-orders/internal/checkout"
	"github.com/ariefcatur/go-restaurant-orders/internal/config"
	"github.com/ariefcatur/go-restaurant-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/metrics"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/postgres"
	"github.com/ariefcatur/go-restaurant-orders/internal/pricing"
	"github.com/ariefcatur/go-restaurant-orders/internal/promo"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/ariefcatur/go-restaurant-orders/internal/tracker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "order-api"}).Error(context.Background(), "config", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{ServiceName: cfg.ServiceName, Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "order-api stopped", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	promos := promo.DefaultRegistry()
	if cfg.Pricing.PromoCodes != "" {
		if promos, err = promo.ParseRegistry(cfg.Pricing.PromoCodes); err != nil {
			return err
		}
	}
	threshold, fee, rate := cfg.Pricing.Decimals()
	quoter := httpx.Quoter{Promos: promos, Params: pricing.Params{DeliveryThreshold: threshold, DeliveryFee: fee, TaxRate: rate}}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewOrders(reg)

	// Kafka producers, satu per topic
	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
	placed.Start()
	changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
	changed.Start()

	repo := &orders.Repo{DB: db}
	sessions := &cart.RedisStore{Redis: rdb, TTL: cfg.Cart.SessionTTL}
	cache := &redisx.StatusCache{Redis: rdb}

	router := httpx.NewRouter(log)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	(&httpx.CartHandler{
		Menu: catalog.Default(), Sessions: sessions, Quoter: quoter, Metrics: m, Log: log, Redis: rdb,
	}).Register(router)
	(&httpx.CheckoutHandler{
		Sessions:  sessions,
		Quoter:    quoter,
		Submitter: &checkout.Submitter{Store: repo, Metrics: m, Log: log},
		Redis:     rdb,
		LockTTL:   cfg.Cart.CheckoutLockTTL,
		Cache:     cache,
		Events:    placed,
		Log:       log,
		Service:   cfg.ServiceName,
	}).Register(router)
	streams, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()
	(&httpx.OrdersHandler{
		Repo:    repo,
		Cache:   cache,
		Feed:    &redisx.StatusFeed{Redis: rdb},
		Events:  changed,
		Tracker: tracker.Options{LivenessTimeout: cfg.Tracker.LivenessTimeout},
		Metrics: m,
		Log:     log,
		Service: cfg.ServiceName,
		Streams: streams,
	}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// track streams never go idle; end them as soon as Shutdown starts so it can drain the rest
	srv.RegisterOnShutdown(stopStreams)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(log.WithField(ctx, "addr", cfg.HTTPAddr), "HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err = <-serveErr:
	}
	log.Info(ctx, "shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	placed.Close()
	changed.Close()
	placed.WaitClosed()
	changed.WaitClosed()
	return err
}
