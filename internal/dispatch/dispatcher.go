package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/template"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/messaging"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

// Request describes one dispatch call. Every call creates a new delivery
// log; deduplication is the caller's concern.
type Request struct {
	TemplateKey string
	To          string
	CC          []string
	BCC         []string
	From        string
	Context     map[string]interface{}
	Initiator   string
}

// Dispatcher resolves, renders, persists and transmits one notification.
// ImmediateDispatcher blocks until the transport settles the outcome;
// QueuedDispatcher returns as soon as the pending log is durable.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (*model.DeliveryLog, error)
}

// Config carries dispatch defaults.
type Config struct {
	FromAddress string
	FromName    string
}

// DeliveryEvent is published on the broker when a delivery changes state.
type DeliveryEvent struct {
	LogID       string    `json:"log_id"`
	TemplateKey string    `json:"template_key"`
	To          string    `json:"to"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// pipeline holds the resolve -> render -> persist steps shared by both
// dispatcher implementations.
type pipeline struct {
	store    *template.Store
	renderer *template.Renderer
	logs     repository.DeliveryLogRepository
	broker   messaging.Broker
	logger   *logger.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

// prepare resolves the template, renders it, and writes the frozen delivery
// log. Resolution failure creates no log. A render failure during a real
// dispatch still writes a failed log so the attempt is auditable, and the
// RenderError is returned alongside it.
func (p *pipeline) prepare(ctx context.Context, req *Request, mode model.DispatchMode) (*model.DeliveryLog, error) {
	tmpl, err := p.store.Resolve(ctx, req.TemplateKey)
	if err != nil {
		return nil, err
	}

	contextData, err := json.Marshal(req.Context)
	if err != nil {
		return nil, fmt.Errorf("context contains non-serializable values: %w", err)
	}
	ccJSON, err := json.Marshal(req.CC)
	if err != nil {
		return nil, fmt.Errorf("invalid cc list: %w", err)
	}
	bccJSON, err := json.Marshal(req.BCC)
	if err != nil {
		return nil, fmt.Errorf("invalid bcc list: %w", err)
	}

	from := req.From
	if from == "" {
		from = p.cfg.FromAddress
	}

	log := &model.DeliveryLog{
		TemplateKey: tmpl.Key,
		ToAddress:   req.To,
		FromAddress: from,
		CC:          ccJSON,
		BCC:         bccJSON,
		Mode:        mode,
		ContextData: contextData,
		Initiator:   req.Initiator,
	}

	rendered, renderErr := p.renderer.Render(tmpl, req.Context)
	if renderErr != nil {
		p.metrics.RenderFailures.WithLabelValues(tmpl.Key).Inc()

		log.Status = model.DeliveryStatusFailed
		log.ErrorMessage = renderErr.Error()
		if createErr := p.logs.Create(ctx, log); createErr != nil {
			p.logger.Error(createErr, "failed to persist render-failure log", "template_key", tmpl.Key)
			return nil, renderErr
		}
		return log, renderErr
	}

	log.Status = model.DeliveryStatusPending
	log.Subject = rendered.Subject
	log.HTMLBody = rendered.HTML
	log.TextBody = rendered.Text

	if err := p.logs.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create delivery log: %w", err)
	}
	return log, nil
}

func (p *pipeline) message(log *model.DeliveryLog) *mail.Message {
	return mail.MessageFromLog(log, p.cfg.FromName)
}

func (p *pipeline) publish(ctx context.Context, channel string, log *model.DeliveryLog) {
	if p.broker == nil {
		return
	}
	event := DeliveryEvent{
		LogID:       log.ID.String(),
		TemplateKey: log.TemplateKey,
		To:          log.ToAddress,
		Status:      string(log.Status),
		Error:       log.ErrorMessage,
		At:          time.Now(),
	}
	if err := p.broker.Publish(ctx, channel, event); err != nil {
		p.logger.Warn("failed to publish delivery event", "channel", channel, "log_id", log.ID.String())
	}
}

// ImmediateDispatcher invokes the transport inline; the caller observes the
// settled sent/failed state on return, never pending.
type ImmediateDispatcher struct {
	pipeline
	transport mail.Transport
}

func NewImmediateDispatcher(
	store *template.Store,
	renderer *template.Renderer,
	logs repository.DeliveryLogRepository,
	transport mail.Transport,
	broker messaging.Broker,
	logger *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *ImmediateDispatcher {
	return &ImmediateDispatcher{
		pipeline: pipeline{
			store:    store,
			renderer: renderer,
			logs:     logs,
			broker:   broker,
			logger:   logger,
			metrics:  m,
			cfg:      cfg,
		},
		transport: transport,
	}
}

func (d *ImmediateDispatcher) Dispatch(ctx context.Context, req *Request) (*model.DeliveryLog, error) {
	d.metrics.EmailsDispatched.WithLabelValues(string(model.DispatchModeImmediate)).Inc()

	log, err := d.prepare(ctx, req, model.DispatchModeImmediate)
	if err != nil {
		return log, err
	}

	start := time.Now()
	correlationID, sendErr := d.transport.Send(ctx, d.message(log))
	d.metrics.TransportLatency.Observe(time.Since(start).Seconds())

	now := time.Now()
	if sendErr != nil {
		d.metrics.EmailsFailed.Inc()
		log.Status = model.DeliveryStatusFailed
		log.ErrorMessage = sendErr.Error()
		if markErr := d.logs.MarkFailed(ctx, log.ID, sendErr.Error(), now); markErr != nil {
			d.logger.Error(markErr, "failed to mark delivery failed", "log_id", log.ID.String())
		}
		d.publish(ctx, messaging.ChannelEmailFailed, log)
		return log, fmt.Errorf("failed to send email to %s: %w", log.ToAddress, sendErr)
	}

	d.metrics.EmailsSent.Inc()
	log.Status = model.DeliveryStatusSent
	log.CorrelationID = &correlationID
	log.SentAt = &now
	if markErr := d.logs.MarkSent(ctx, log.ID, correlationID, now); markErr != nil {
		d.logger.Error(markErr, "failed to mark delivery sent", "log_id", log.ID.String())
	}
	d.publish(ctx, messaging.ChannelEmailSent, log)

	d.logger.Info("email sent",
		"log_id", log.ID.String(),
		"template_key", log.TemplateKey,
		"to", log.ToAddress,
	)
	return log, nil
}

// QueuedDispatcher persists the pending log and returns; the delivery
// worker picks it up and runs the same transport transition out of band.
// There is no cancellation once the log is accepted.
type QueuedDispatcher struct {
	pipeline
}

func NewQueuedDispatcher(
	store *template.Store,
	renderer *template.Renderer,
	logs repository.DeliveryLogRepository,
	broker messaging.Broker,
	logger *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *QueuedDispatcher {
	return &QueuedDispatcher{
		pipeline: pipeline{
			store:    store,
			renderer: renderer,
			logs:     logs,
			broker:   broker,
			logger:   logger,
			metrics:  m,
			cfg:      cfg,
		},
	}
}

func (d *QueuedDispatcher) Dispatch(ctx context.Context, req *Request) (*model.DeliveryLog, error) {
	d.metrics.EmailsDispatched.WithLabelValues(string(model.DispatchModeQueued)).Inc()

	log, err := d.prepare(ctx, req, model.DispatchModeQueued)
	if err != nil {
		return log, err
	}

	d.logger.Debug("email queued",
		"log_id", log.ID.String(),
		"template_key", log.TemplateKey,
		"to", log.ToAddress,
	)
	return log, nil
}

// BulkResult tallies a multi-recipient dispatch.
type BulkResult struct {
	TotalSent        int      `json:"total_sent"`
	TotalFailed      int      `json:"total_failed"`
	FailedRecipients []string `json:"failed_recipients,omitempty"`
}

// DispatchBulk sends the same template to each recipient in turn. Each
// recipient gets its own delivery log; one failure does not stop the rest.
func DispatchBulk(ctx context.Context, d Dispatcher, req *Request, recipients []string) *BulkResult {
	result := &BulkResult{}
	for _, to := range recipients {
		r := *req
		r.To = to
		if _, err := d.Dispatch(ctx, &r); err != nil {
			result.TotalFailed++
			result.FailedRecipients = append(result.FailedRecipients, to)
			continue
		}
		result.TotalSent++
	}
	return result
}
