package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/webhook"
	"github.com/jwalitptl/notify-api/pkg/logger"
	"github.com/jwalitptl/notify-api/pkg/metrics"
)

type fakeDeliveryRepo struct {
	repository.DeliveryLogRepository
	known   map[string]*model.DeliveryLog
	applied []string
}

func (f *fakeDeliveryRepo) ApplyStatusEvent(_ context.Context, correlationID string, target model.DeliveryStatus, _ time.Time) (bool, error) {
	log, ok := f.known[correlationID]
	if !ok || log.Status.Terminal() {
		return false, nil
	}
	next, _ := model.NextStatus(log.Status, target)
	log.Status = next
	f.applied = append(f.applied, correlationID)
	return true, nil
}

func (f *fakeDeliveryRepo) GetByCorrelationID(_ context.Context, correlationID string) (*model.DeliveryLog, error) {
	log, ok := f.known[correlationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return log, nil
}

var testMetrics = metrics.New("webhook_handler_test")

func newTestRouter(repo *fakeDeliveryRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	ingester := webhook.NewIngester(repo, nil, logger.New(nil), testMetrics)
	h := NewHandler(ingester, "", logger.New(nil))
	h.RegisterRoutes(engine.Group(""))
	return engine
}

func postEvent(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestWebhookValidEvent(t *testing.T) {
	repo := &fakeDeliveryRepo{known: map[string]*model.DeliveryLog{
		"corr-1": {Status: model.DeliveryStatusSent},
	}}
	engine := newTestRouter(repo)

	w := postEvent(t, engine, `{"event": "delivered", "message_id": "corr-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.Equal(t, model.DeliveryStatusDelivered, repo.known["corr-1"].Status)
}

func TestWebhookUnknownCorrelationID(t *testing.T) {
	engine := newTestRouter(&fakeDeliveryRepo{known: map[string]*model.DeliveryLog{}})

	w := postEvent(t, engine, `{"event": "delivered", "message_id": "nobody-knows"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestWebhookUnknownEvent(t *testing.T) {
	repo := &fakeDeliveryRepo{known: map[string]*model.DeliveryLog{
		"corr-1": {Status: model.DeliveryStatusSent},
	}}
	engine := newTestRouter(repo)

	w := postEvent(t, engine, `{"event": "unsubscribed", "message_id": "corr-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.DeliveryStatusSent, repo.known["corr-1"].Status, "unknown events must not change state")
}

func TestWebhookMissingFields(t *testing.T) {
	repo := &fakeDeliveryRepo{known: map[string]*model.DeliveryLog{}}
	engine := newTestRouter(repo)

	w := postEvent(t, engine, `{"event": "delivered"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, repo.applied)
}

func TestWebhookMalformedJSON(t *testing.T) {
	engine := newTestRouter(&fakeDeliveryRepo{known: map[string]*model.DeliveryLog{}})

	w := postEvent(t, engine, `{"event": "delivered",`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestWebhookSignatureVerification(t *testing.T) {
	repo := &fakeDeliveryRepo{known: map[string]*model.DeliveryLog{
		"corr-1": {Status: model.DeliveryStatusSent},
	}}
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	ingester := webhook.NewIngester(repo, nil, logger.New(nil), testMetrics)
	h := NewHandler(ingester, "hook-secret", logger.New(nil))
	h.RegisterRoutes(engine.Group(""))

	body := `{"event": "delivered", "message_id": "corr-1"}`

	// Missing signature is rejected.
	w := postEvent(t, engine, body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, model.DeliveryStatusSent, repo.known["corr-1"].Status)

	// A valid signature is accepted.
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, hex.EncodeToString(mac.Sum(nil)))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.DeliveryStatusDelivered, repo.known["corr-1"].Status)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	engine := newTestRouter(&fakeDeliveryRepo{known: map[string]*model.DeliveryLog{}})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/email", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
