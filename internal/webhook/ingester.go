package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/messaging"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

// StatusEvent is published on the broker when a webhook event is accepted.
type StatusEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Event         string    `json:"event"`
	At            time.Time `json:"at"`
}

// Ingester correlates provider delivery events to delivery logs and applies
// guarded status transitions. It is deliberately over-tolerant: unknown
// event types and unmatched correlation ids succeed as no-ops so provider
// retries of stale callbacks never turn into retry storms.
type Ingester struct {
	logs    repository.DeliveryLogRepository
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewIngester(logs repository.DeliveryLogRepository, broker messaging.Broker, logger *logger.Logger, m *metrics.Metrics) *Ingester {
	return &Ingester{
		logs:    logs,
		broker:  broker,
		logger:  logger,
		metrics: m,
	}
}

// Ingest applies one provider event. Safe under concurrent delivery of
// events for the same correlation id: the transition guard runs as a single
// conditional update in the repository.
func (i *Ingester) Ingest(ctx context.Context, event, correlationID string) error {
	i.metrics.WebhookEvents.WithLabelValues(event).Inc()

	target, ok := model.StatusForWebhookEvent(event)
	if !ok {
		// Forward compatibility: providers add event types without notice.
		i.logger.Debug("ignoring unknown webhook event", "event", event, "correlation_id", correlationID)
		return nil
	}

	applied, err := i.logs.ApplyStatusEvent(ctx, correlationID, target, time.Now())
	if err != nil {
		return err
	}

	if !applied {
		if _, getErr := i.logs.GetByCorrelationID(ctx, correlationID); errors.Is(getErr, repository.ErrNotFound) {
			i.metrics.WebhookUnmatched.Inc()
			i.logger.Warn("webhook event for unknown correlation id",
				"event", event,
				"correlation_id", correlationID,
			)
		} else {
			i.metrics.WebhookRejected.Inc()
			i.logger.Debug("webhook event rejected by terminal delivery",
				"event", event,
				"correlation_id", correlationID,
			)
		}
		return nil
	}

	if i.broker != nil {
		statusEvent := StatusEvent{
			CorrelationID: correlationID,
			Event:         event,
			At:            time.Now(),
		}
		if pubErr := i.broker.Publish(ctx, messaging.ChannelEmailStatus, statusEvent); pubErr != nil {
			i.logger.Warn("failed to publish status event", "correlation_id", correlationID)
		}
	}
	return nil
}
