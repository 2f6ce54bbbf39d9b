package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-api/internal/webhook"
	"github.com/jwalitptl/notify-api/pkg/logger"
)

const HeaderSignature = "X-Webhook-Signature"

type Handler struct {
	ingester *webhook.Ingester
	// secret enables HMAC verification of callbacks; empty disables it.
	secret string
	logger *logger.Logger
}

func NewHandler(ingester *webhook.Ingester, secret string, logger *logger.Logger) *Handler {
	return &Handler{ingester: ingester, secret: secret, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/email", h.HandleEvent)
}

type eventPayload struct {
	Event     string `json:"event"`
	MessageID string `json:"message_id"`
}

// HandleEvent accepts provider status callbacks. Any structurally valid
// payload is acknowledged with 200 so the provider does not retry events we
// chose to ignore; only unparseable bodies and bad signatures are rejected.
func (h *Handler) HandleEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if h.secret != "" && !h.verifySignature(body, c.GetHeader(HeaderSignature)) {
		h.logger.Warn("webhook signature mismatch", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.MessageID == "" || payload.Event == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.ingester.Ingest(c.Request.Context(), payload.Event, payload.MessageID); err != nil {
		h.logger.Error(err, "failed to ingest webhook event",
			"event", payload.Event,
			"correlation_id", payload.MessageID,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
