package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch pipeline metrics
	EmailsDispatched *prometheus.CounterVec
	EmailsSent       prometheus.Counter
	EmailsFailed     prometheus.Counter
	RenderFailures   *prometheus.CounterVec
	TransportLatency prometheus.Histogram

	// Queued delivery worker metrics
	QueueClaimed      prometheus.Counter
	QueueRetries      prometheus.Counter
	ProcessingLatency prometheus.Histogram
	PendingQueueSize  prometheus.Gauge

	// Webhook metrics
	WebhookEvents    *prometheus.CounterVec
	WebhookUnmatched prometheus.Counter
	WebhookRejected  prometheus.Counter
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		EmailsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_dispatched_total",
			Help:      "Total number of dispatch calls, by mode",
		}, []string{"mode"}),
		EmailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of emails handed to the transport successfully",
		}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of emails that failed at the transport",
		}),
		RenderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Total number of template render failures, by template key",
		}, []string{"template_key"}),
		TransportLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_duration_seconds",
			Help:      "Time spent in the mail transport per send",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		QueueClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_claimed_total",
			Help:      "Total number of queued deliveries claimed by workers",
		}),
		QueueRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_retries_total",
			Help:      "Total number of failed deliveries requeued for retry",
		}),
		ProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_processing_duration_seconds",
			Help:      "Time spent processing a batch of queued deliveries",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		PendingQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_size",
			Help:      "Current number of queued deliveries awaiting a worker",
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of provider webhook events received, by event type",
		}, []string{"event"}),
		WebhookUnmatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_unmatched_total",
			Help:      "Total number of webhook events with no matching delivery log",
		}),
		WebhookRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejected_total",
			Help:      "Total number of webhook events rejected by the state machine",
		}),
	}
}
