package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusOpened    DeliveryStatus = "opened"
	DeliveryStatusClicked   DeliveryStatus = "clicked"
	DeliveryStatusBounced   DeliveryStatus = "bounced"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// statusPrecedence orders the non-terminal lifecycle. Webhook events may
// arrive out of order; a lower-precedence event must never move status
// backward.
var statusPrecedence = map[DeliveryStatus]int{
	DeliveryStatusPending:   0,
	DeliveryStatusSent:      1,
	DeliveryStatusDelivered: 2,
	DeliveryStatusOpened:    3,
	DeliveryStatusClicked:   4,
}

// Precedence returns the lifecycle rank of a non-terminal status, or -1 for
// terminal and unknown statuses.
func (s DeliveryStatus) Precedence() int {
	if p, ok := statusPrecedence[s]; ok {
		return p
	}
	return -1
}

// Terminal reports whether no further transition is accepted from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusFailed || s == DeliveryStatusBounced
}

// StatusForWebhookEvent maps a provider event type to its target status.
// Unknown event types return false; the ingester treats them as a no-op.
func StatusForWebhookEvent(event string) (DeliveryStatus, bool) {
	switch event {
	case "delivered":
		return DeliveryStatusDelivered, true
	case "opened":
		return DeliveryStatusOpened, true
	case "clicked":
		return DeliveryStatusClicked, true
	case "bounced":
		return DeliveryStatusBounced, true
	}
	return "", false
}

// NextStatus applies the delivery state-machine rule: terminal states never
// change, terminal events always win, and non-terminal events only move
// status forward in precedence. The second return reports whether the status
// changed. The conditional update in the postgres repository mirrors this
// rule so it can run as one atomic statement.
func NextStatus(current, target DeliveryStatus) (DeliveryStatus, bool) {
	if current.Terminal() {
		return current, false
	}
	if target.Terminal() {
		return target, true
	}
	if target.Precedence() > current.Precedence() {
		return target, true
	}
	return current, false
}

type DispatchMode string

const (
	DispatchModeImmediate DispatchMode = "immediate"
	DispatchModeQueued    DispatchMode = "queued"
)

// DeliveryLog is the durable record of one dispatch attempt. The dispatcher
// writes it at creation and on the sent/failed transition; afterwards only
// the webhook ingester mutates it. Rendered content is frozen at send time
// so later template edits never rewrite history.
type DeliveryLog struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TemplateKey string    `json:"template_key" db:"template_key"`

	ToAddress   string          `json:"to_address" db:"to_address"`
	FromAddress string          `json:"from_address" db:"from_address"`
	CC          json.RawMessage `json:"cc,omitempty" db:"cc"`
	BCC         json.RawMessage `json:"bcc,omitempty" db:"bcc"`

	Subject  string `json:"subject" db:"subject"`
	HTMLBody string `json:"html_body" db:"html_body"`
	TextBody string `json:"text_body" db:"text_body"`

	Status        DeliveryStatus `json:"status" db:"status"`
	Mode          DispatchMode   `json:"mode" db:"mode"`
	CorrelationID *string        `json:"correlation_id,omitempty" db:"correlation_id"`
	ErrorMessage  string         `json:"error_message,omitempty" db:"error_message"`

	// ContextData is the JSON snapshot of the render context, kept for audit.
	ContextData json.RawMessage `json:"context_data,omitempty" db:"context_data"`
	Initiator   string          `json:"initiator,omitempty" db:"initiator"`

	Attempts    int        `json:"attempts" db:"attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt    *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// DeliveryLogFilter narrows delivery log listings.
type DeliveryLogFilter struct {
	TemplateKey string
	ToAddress   string
	Status      DeliveryStatus
	Limit       int
	Offset      int
}
