package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notify-api/internal/config"
	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/repository/postgres"
	"github.com/jwalitptl/notify-api/internal/worker"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/messaging"
	"github.com/jwalitptl/notify-api/pkg/messaging/redis"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.New(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.New("notify_worker")

	base := postgres.NewBaseRepository(db)
	deliveryRepo := postgres.NewDeliveryLogRepository(base)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, lg.ZL())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()
	}

	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		User:          cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		SenderAddress: cfg.Dispatch.FromAddress,
		SenderName:    cfg.Dispatch.FromName,
		Timeout:       cfg.SMTP.Timeout,
	}, lg)

	deliveryProcessor := worker.NewDeliveryProcessor(deliveryRepo, transport, broker, worker.DeliveryProcessorConfig{
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval,
		FromName:     cfg.Dispatch.FromName,
	}, lg, m)

	retryProcessor := worker.NewRetryProcessor(deliveryRepo, worker.RetryProcessorConfig{
		Interval:    cfg.Worker.RetryInterval,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Backoff:     cfg.Worker.RetryBackoff,
		Window:      cfg.Worker.RetryWindow,
	}, lg, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go deliveryProcessor.Start(ctx)
	go retryProcessor.Start(ctx)

	// Health and metrics endpoint for the worker process.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("worker health server failed")
		}
	}()

	lg.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
