package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-api/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type TemplateRepository interface {
	Create(ctx context.Context, tmpl *model.EmailTemplate) error
	GetByKey(ctx context.Context, key string) (*model.EmailTemplate, error)
	// GetActiveByKey only sees templates with active = true.
	GetActiveByKey(ctx context.Context, key string) (*model.EmailTemplate, error)
	List(ctx context.Context) ([]*model.EmailTemplate, error)
	Update(ctx context.Context, tmpl *model.EmailTemplate) error
	Delete(ctx context.Context, key string) error
}

type DeliveryLogRepository interface {
	Create(ctx context.Context, log *model.DeliveryLog) error
	Get(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.DeliveryLog, error)
	List(ctx context.Context, filter model.DeliveryLogFilter) ([]*model.DeliveryLog, error)

	MarkSent(ctx context.Context, id uuid.UUID, correlationID string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, at time.Time) error

	// ApplyStatusEvent applies one webhook event as a single conditional
	// update: terminal rows are untouched, the per-event timestamp is set
	// once, and status only ever moves forward in precedence. Returns false
	// when no matching non-terminal row exists.
	ApplyStatusEvent(ctx context.Context, correlationID string, target model.DeliveryStatus, at time.Time) (bool, error)

	// Queued delivery worker support. Claimed rows stay row-locked until the
	// transaction ends, so concurrent workers skip them.
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	ClaimQueuedTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.DeliveryLog, error)
	MarkSentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, correlationID string, at time.Time) error
	MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, errorMessage string, at time.Time) error

	// RequeueFailed returns failed queued deliveries to pending with a retry
	// backoff, up to maxAttempts per delivery.
	RequeueFailed(ctx context.Context, newerThan time.Time, maxAttempts int, backoff time.Duration) (int64, error)
	CountQueuedPending(ctx context.Context) (int64, error)
}
