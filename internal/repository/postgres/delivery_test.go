package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

func newMockRepo(t *testing.T) (repository.DeliveryLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewDeliveryLogRepository(NewBaseRepository(sqlxDB)), mock
}

func TestApplyStatusEventMatched(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE delivery_logs`).
		WithArgs("c1", "delivered", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.ApplyStatusEvent(context.Background(), "c1", model.DeliveryStatusDelivered, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStatusEventNoMatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE delivery_logs`).
		WithArgs("unknown", "opened", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.ApplyStatusEvent(context.Background(), "unknown", model.DeliveryStatusOpened, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE delivery_logs`).
		WithArgs("corr-42", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSent(context.Background(), id, "corr-42", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedUnknownID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE delivery_logs`).
		WithArgs("smtp timeout", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFailed(context.Background(), id, "smtp timeout", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeliveryLogAssignsID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO delivery_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log := &model.DeliveryLog{
		TemplateKey: "welcome",
		ToAddress:   "a@example.com",
		FromAddress: "noreply@example.com",
		Status:      model.DeliveryStatusPending,
		Mode:        model.DispatchModeQueued,
	}
	require.NoError(t, repo.Create(context.Background(), log))
	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
