package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

const deliveryColumns = `
	id, template_key, to_address, from_address, cc, bcc,
	subject, html_body, text_body, status, mode, correlation_id,
	error_message, context_data, initiator, attempts, next_retry_at,
	created_at, sent_at, delivered_at, opened_at, clicked_at, updated_at
`

type deliveryLogRepository struct {
	BaseRepository
}

func NewDeliveryLogRepository(base BaseRepository) repository.DeliveryLogRepository {
	return &deliveryLogRepository{base}
}

func (r *deliveryLogRepository) Create(ctx context.Context, log *model.DeliveryLog) error {
	query := `
		INSERT INTO delivery_logs (
			id, template_key, to_address, from_address, cc, bcc,
			subject, html_body, text_body, status, mode,
			error_message, context_data, initiator, attempts,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)
	`
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.TemplateKey,
		log.ToAddress,
		log.FromAddress,
		log.CC,
		log.BCC,
		log.Subject,
		log.HTMLBody,
		log.TextBody,
		log.Status,
		log.Mode,
		log.ErrorMessage,
		log.ContextData,
		log.Initiator,
		log.Attempts,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery log: %w", err)
	}
	return nil
}

func (r *deliveryLogRepository) Get(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_logs WHERE id = $1`

	var log model.DeliveryLog
	err := r.db.GetContext(ctx, &log, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return &log, nil
}

func (r *deliveryLogRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*model.DeliveryLog, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_logs WHERE correlation_id = $1`

	var log model.DeliveryLog
	err := r.db.GetContext(ctx, &log, query, correlationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log by correlation id: %w", err)
	}
	return &log, nil
}

func (r *deliveryLogRepository) List(ctx context.Context, filter model.DeliveryLogFilter) ([]*model.DeliveryLog, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_logs WHERE 1=1`
	args := []interface{}{}

	if filter.TemplateKey != "" {
		args = append(args, filter.TemplateKey)
		query += fmt.Sprintf(" AND template_key = $%d", len(args))
	}
	if filter.ToAddress != "" {
		args = append(args, filter.ToAddress)
		query += fmt.Sprintf(" AND to_address = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var logs []*model.DeliveryLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

const markSentQuery = `
	UPDATE delivery_logs
	SET status = 'sent', correlation_id = $1, sent_at = $2,
	    attempts = attempts + 1, updated_at = $2
	WHERE id = $3
`

func (r *deliveryLogRepository) MarkSent(ctx context.Context, id uuid.UUID, correlationID string, at time.Time) error {
	return execMark(ctx, r.db, markSentQuery, correlationID, at, id)
}

func (r *deliveryLogRepository) MarkSentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, correlationID string, at time.Time) error {
	return execMark(ctx, tx, markSentQuery, correlationID, at, id)
}

const markFailedQuery = `
	UPDATE delivery_logs
	SET status = 'failed', error_message = $1,
	    attempts = attempts + 1, updated_at = $2
	WHERE id = $3
`

func (r *deliveryLogRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, at time.Time) error {
	return execMark(ctx, r.db, markFailedQuery, errorMessage, at, id)
}

func (r *deliveryLogRepository) MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, errorMessage string, at time.Time) error {
	return execMark(ctx, tx, markFailedQuery, errorMessage, at, id)
}

func execMark(ctx context.Context, e sqlx.ExecerContext, query string, arg interface{}, at time.Time, id uuid.UUID) error {
	result, err := e.ExecContext(ctx, query, arg, at, id)
	if err != nil {
		return fmt.Errorf("failed to update delivery log: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// applyStatusEventQuery folds the whole state-machine guard into one
// statement so concurrent webhook events for the same delivery cannot lose
// updates: terminal rows are excluded, each timestamp is set at most once,
// and status only moves forward in lifecycle order. Terminal events always
// win over a non-terminal current status.
const applyStatusEventQuery = `
	UPDATE delivery_logs
	SET status = CASE
			WHEN $2 IN ('failed', 'bounced') THEN $2
			WHEN array_position(ARRAY['pending','sent','delivered','opened','clicked'], $2)
			     > array_position(ARRAY['pending','sent','delivered','opened','clicked'], status)
			THEN $2
			ELSE status
		END,
	    delivered_at = CASE WHEN $2 = 'delivered' THEN COALESCE(delivered_at, $3) ELSE delivered_at END,
	    opened_at    = CASE WHEN $2 = 'opened'    THEN COALESCE(opened_at, $3)    ELSE opened_at    END,
	    clicked_at   = CASE WHEN $2 = 'clicked'   THEN COALESCE(clicked_at, $3)   ELSE clicked_at   END,
	    updated_at = $3
	WHERE correlation_id = $1 AND status NOT IN ('failed', 'bounced')
`

func (r *deliveryLogRepository) ApplyStatusEvent(ctx context.Context, correlationID string, target model.DeliveryStatus, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, applyStatusEventQuery, correlationID, string(target), at)
	if err != nil {
		return false, fmt.Errorf("failed to apply status event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *deliveryLogRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *deliveryLogRepository) ClaimQueuedTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.DeliveryLog, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM delivery_logs
		WHERE status = 'pending' AND mode = 'queued'
		AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	var logs []*model.DeliveryLog
	if err := tx.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to claim queued deliveries: %w", err)
	}
	return logs, nil
}

func (r *deliveryLogRepository) RequeueFailed(ctx context.Context, newerThan time.Time, maxAttempts int, backoff time.Duration) (int64, error) {
	query := `
		UPDATE delivery_logs
		SET status = 'pending', error_message = '',
		    next_retry_at = NOW() + (interval '1 second' * $1 * attempts),
		    updated_at = NOW()
		WHERE status = 'failed' AND mode = 'queued'
		AND attempts < $2 AND created_at >= $3
	`
	result, err := r.db.ExecContext(ctx, query, int(backoff.Seconds()), maxAttempts, newerThan)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed deliveries: %w", err)
	}
	return result.RowsAffected()
}

func (r *deliveryLogRepository) CountQueuedPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM delivery_logs WHERE status = 'pending' AND mode = 'queued'`)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued deliveries: %w", err)
	}
	return count, nil
}
