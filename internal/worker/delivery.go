package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/messaging"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

type DeliveryProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	FromName     string
}

// DeliveryProcessor drains queued pending deliveries and runs the transport
// transition out of the caller's control flow. Claimed rows stay row-locked
// for the duration of the batch, so multiple worker instances never send
// the same delivery twice.
type DeliveryProcessor struct {
	repo      repository.DeliveryLogRepository
	transport mail.Transport
	broker    messaging.Broker
	config    DeliveryProcessorConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDeliveryProcessor(
	repo repository.DeliveryLogRepository,
	transport mail.Transport,
	broker messaging.Broker,
	config DeliveryProcessorConfig,
	logger *logger.Logger,
	m *metrics.Metrics,
) *DeliveryProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &DeliveryProcessor{
		repo:      repo,
		transport: transport,
		broker:    broker,
		config:    config,
		logger:    logger,
		metrics:   m,
	}
}

func (p *DeliveryProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting delivery processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down delivery processor")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "failed to process delivery batch")
			}
		}
	}
}

func (p *DeliveryProcessor) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.ProcessingLatency)
	defer timer.ObserveDuration()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	logs, err := p.repo.ClaimQueuedTx(ctx, tx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim queued deliveries: %w", err)
	}
	if len(logs) == 0 {
		return tx.Commit()
	}
	p.metrics.QueueClaimed.Add(float64(len(logs)))

	for _, log := range logs {
		now := time.Now()
		correlationID, sendErr := p.transport.Send(ctx, mail.MessageFromLog(log, p.config.FromName))
		if sendErr != nil {
			p.metrics.EmailsFailed.Inc()
			log.Status = model.DeliveryStatusFailed
			log.ErrorMessage = sendErr.Error()
			if markErr := p.repo.MarkFailedTx(ctx, tx, log.ID, sendErr.Error(), now); markErr != nil {
				p.logger.Error(markErr, "failed to mark delivery failed", "log_id", log.ID.String())
			}
			p.publish(ctx, messaging.ChannelEmailFailed, log)
			p.logger.Error(sendErr, "failed to send queued email",
				"log_id", log.ID.String(),
				"to", log.ToAddress,
			)
			continue
		}

		p.metrics.EmailsSent.Inc()
		log.Status = model.DeliveryStatusSent
		log.CorrelationID = &correlationID
		if markErr := p.repo.MarkSentTx(ctx, tx, log.ID, correlationID, now); markErr != nil {
			p.logger.Error(markErr, "failed to mark delivery sent", "log_id", log.ID.String())
			continue
		}
		p.publish(ctx, messaging.ChannelEmailSent, log)

		p.logger.Info("queued email sent",
			"log_id", log.ID.String(),
			"template_key", log.TemplateKey,
			"to", log.ToAddress,
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delivery batch: %w", err)
	}

	if pending, err := p.repo.CountQueuedPending(ctx); err == nil {
		p.metrics.PendingQueueSize.Set(float64(pending))
	}
	return nil
}

func (p *DeliveryProcessor) publish(ctx context.Context, channel string, log *model.DeliveryLog) {
	if p.broker == nil {
		return
	}
	event := map[string]interface{}{
		"log_id":       log.ID.String(),
		"template_key": log.TemplateKey,
		"to":           log.ToAddress,
		"status":       string(log.Status),
		"error":        log.ErrorMessage,
	}
	if err := p.broker.Publish(ctx, channel, event); err != nil {
		p.logger.Warn("failed to publish delivery event", "channel", channel, "log_id", log.ID.String())
	}
}
