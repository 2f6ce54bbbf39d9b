package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notify-api/internal/auth"
	"github.com/jwalitptl/notify-api/internal/config"
	"github.com/jwalitptl/notify-api/internal/dispatch"
	"github.com/jwalitptl/notify-api/internal/handler"
	messageHandler "github.com/jwalitptl/notify-api/internal/handler/message"
	templateHandler "github.com/jwalitptl/notify-api/internal/handler/template"
	webhookHandler "github.com/jwalitptl/notify-api/internal/handler/webhook"
	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/middleware"
	"github.com/jwalitptl/notify-api/internal/repository/postgres"
	"github.com/jwalitptl/notify-api/internal/router"
	"github.com/jwalitptl/notify-api/internal/template"
	"github.com/jwalitptl/notify-api/internal/webhook"
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

	m := metrics.New("notify")

	// Repositories
	base := postgres.NewBaseRepository(db)
	templateRepo := postgres.NewTemplateRepository(base)
	deliveryRepo := postgres.NewDeliveryLogRepository(base)

	// Broker is optional; the pipeline degrades to log-only eventing.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, lg.ZL())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()
	}

	// Core pipeline
	store := template.NewStore(templateRepo, lg)
	renderer := template.NewRenderer()
	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		User:          cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		SenderAddress: cfg.Dispatch.FromAddress,
		SenderName:    cfg.Dispatch.FromName,
		Timeout:       cfg.SMTP.Timeout,
	}, lg)

	dispatchCfg := dispatch.Config{
		FromAddress: cfg.Dispatch.FromAddress,
		FromName:    cfg.Dispatch.FromName,
	}
	immediate := dispatch.NewImmediateDispatcher(store, renderer, deliveryRepo, transport, broker, lg, m, dispatchCfg)
	queued := dispatch.NewQueuedDispatcher(store, renderer, deliveryRepo, broker, lg, m, dispatchCfg)
	ingester := webhook.NewIngester(deliveryRepo, broker, lg, m)

	// Middleware and handlers
	tokenSvc := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenExpiry)
	authMW := middleware.NewAuthMiddleware(tokenSvc)

	h := handler.NewHandler(db)
	messageH := messageHandler.NewHandler(immediate, queued, deliveryRepo)
	templateH := templateHandler.NewHandler(store, renderer)
	webhookH := webhookHandler.NewHandler(ingester, cfg.Webhook.Secret, lg)

	r := router.NewRouter(authMW, messageH, templateH, webhookH, h, router.Config{
		RateLimit:      rate.Limit(cfg.Server.RateLimit),
		RateBurst:      cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error(err, "forced shutdown")
	}
}
