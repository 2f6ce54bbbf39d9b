package message

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/dispatch"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/template"
)

type fakeDispatcher struct {
	calls []*dispatch.Request
	log   *model.DeliveryLog
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req *dispatch.Request) (*model.DeliveryLog, error) {
	f.calls = append(f.calls, req)
	return f.log, f.err
}

type fakeLogRepo struct {
	repository.DeliveryLogRepository
	logs map[uuid.UUID]*model.DeliveryLog
}

func (f *fakeLogRepo) Get(_ context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	log, ok := f.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return log, nil
}

func newTestRouter(immediate, queued *fakeDispatcher, logs *fakeLogRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	if logs == nil {
		logs = &fakeLogRepo{logs: map[uuid.UUID]*model.DeliveryLog{}}
	}
	h := NewHandler(immediate, queued, logs)
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestSendMessage(t *testing.T) {
	immediate := &fakeDispatcher{log: &model.DeliveryLog{ID: uuid.New(), Status: model.DeliveryStatusSent}}
	queued := &fakeDispatcher{}
	engine := newTestRouter(immediate, queued, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages",
		`{"template_key": "user.welcome", "to": "a@example.com", "context": {"name": "Ann"}}`)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, immediate.calls, 1)
	assert.Empty(t, queued.calls)
	assert.Equal(t, "user.welcome", immediate.calls[0].TemplateKey)
	assert.Equal(t, "a@example.com", immediate.calls[0].To)
}

func TestSendMessageAsync(t *testing.T) {
	immediate := &fakeDispatcher{}
	queued := &fakeDispatcher{log: &model.DeliveryLog{ID: uuid.New(), Status: model.DeliveryStatusPending}}
	engine := newTestRouter(immediate, queued, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages",
		`{"template_key": "user.welcome", "to": "a@example.com", "async": true}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, immediate.calls)
	require.Len(t, queued.calls, 1)
}

func TestSendMessageInvalidRecipient(t *testing.T) {
	immediate := &fakeDispatcher{}
	engine := newTestRouter(immediate, &fakeDispatcher{}, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages",
		`{"template_key": "user.welcome", "to": "not-an-email"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, immediate.calls)
}

func TestSendMessageUnknownTemplate(t *testing.T) {
	immediate := &fakeDispatcher{err: template.ErrTemplateNotFound}
	engine := newTestRouter(immediate, &fakeDispatcher{}, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages",
		`{"template_key": "missing", "to": "a@example.com"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendBulk(t *testing.T) {
	immediate := &fakeDispatcher{log: &model.DeliveryLog{ID: uuid.New(), Status: model.DeliveryStatusSent}}
	engine := newTestRouter(immediate, &fakeDispatcher{}, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages/bulk",
		`{"template_key": "user.welcome", "recipients": ["a@example.com", "b@example.com"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, immediate.calls, 2)
	assert.Contains(t, w.Body.String(), `"total_sent":2`)
}

func TestSendBulkIgnoresAsync(t *testing.T) {
	immediate := &fakeDispatcher{log: &model.DeliveryLog{ID: uuid.New(), Status: model.DeliveryStatusSent}}
	queued := &fakeDispatcher{}
	engine := newTestRouter(immediate, queued, nil)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/messages/bulk",
		`{"template_key": "user.welcome", "recipients": ["a@example.com"], "async": true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, immediate.calls, 1, "bulk sends always settle through the immediate dispatcher")
	assert.Empty(t, queued.calls)
	assert.Contains(t, w.Body.String(), `"total_sent":1`)
}

func TestGetMessage(t *testing.T) {
	id := uuid.New()
	logs := &fakeLogRepo{logs: map[uuid.UUID]*model.DeliveryLog{
		id: {ID: id, Status: model.DeliveryStatusDelivered},
	}}
	engine := newTestRouter(&fakeDispatcher{}, &fakeDispatcher{}, logs)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/messages/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "delivered")

	w = doJSON(t, engine, http.MethodGet, "/api/v1/messages/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/messages/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
