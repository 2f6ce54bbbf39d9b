package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

type RetryProcessorConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// Window bounds how old a failed delivery may be and still get retried.
	Window time.Duration
}

// RetryProcessor periodically returns recently failed queued deliveries to
// pending so the delivery processor picks them up again. This is an
// operator-side recovery loop, not part of the webhook state machine: only
// transport failures are requeued, never bounces.
type RetryProcessor struct {
	repo    repository.DeliveryLogRepository
	config  RetryProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRetryProcessor(repo repository.DeliveryLogRepository, config RetryProcessorConfig, logger *logger.Logger, m *metrics.Metrics) *RetryProcessor {
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		panic("MaxAttempts must be greater than 0")
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}

	return &RetryProcessor{
		repo:    repo,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

func (p *RetryProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Info("starting retry processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down retry processor")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *RetryProcessor) runOnce(ctx context.Context) {
	newerThan := time.Now().Add(-p.config.Window)
	requeued, err := p.repo.RequeueFailed(ctx, newerThan, p.config.MaxAttempts, p.config.Backoff)
	if err != nil {
		p.logger.Error(err, "failed to requeue failed deliveries")
		return
	}
	if requeued > 0 {
		p.metrics.QueueRetries.Add(float64(requeued))
		p.logger.Info("requeued failed deliveries", "count", requeued)
	}
}
