package message

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notify-api/internal/dispatch"
	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/handler"
	"github.com/jwalitptl/notify-api/internal/middleware"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

type Handler struct {
	immediate dispatch.Dispatcher
	queued    dispatch.Dispatcher
	logs      repository.DeliveryLogRepository
}

func NewHandler(immediate, queued dispatch.Dispatcher, logs repository.DeliveryLogRepository) *Handler {
	return &Handler{
		immediate: immediate,
		queued:    queued,
		logs:      logs,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	messages := r.Group("/messages")
	{
		messages.POST("", h.SendMessage)
		messages.POST("/bulk", h.SendBulk)
		messages.GET("", h.ListMessages)
		messages.GET("/:id", h.GetMessage)
	}
}

type sendMessageRequest struct {
	TemplateKey string                 `json:"template_key" binding:"required"`
	To          string                 `json:"to" binding:"required,email"`
	CC          []string               `json:"cc" binding:"omitempty,dive,email"`
	BCC         []string               `json:"bcc" binding:"omitempty,dive,email"`
	From        string                 `json:"from" binding:"omitempty,email"`
	Context     map[string]interface{} `json:"context"`
	Async       bool                   `json:"async"`
}

func (r *sendMessageRequest) toDispatchRequest(initiator string) *dispatch.Request {
	return &dispatch.Request{
		TemplateKey: r.TemplateKey,
		To:          r.To,
		CC:          r.CC,
		BCC:         r.BCC,
		From:        r.From,
		Context:     r.Context,
		Initiator:   initiator,
	}
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	d := h.immediate
	if req.Async {
		d = h.queued
	}

	log, err := d.Dispatch(c.Request.Context(), req.toDispatchRequest(c.GetString(middleware.ContextSubject)))
	if err != nil {
		if log == nil {
			handler.RespondError(c, err)
			return
		}
		// The attempt failed but left a durable log worth returning.
		status := http.StatusUnprocessableEntity
		var te *mail.TransportError
		if errors.As(err, &te) {
			status = http.StatusBadGateway
		}
		c.JSON(status, &handler.Response{Status: "error", Message: err.Error(), Data: log})
		return
	}

	status := http.StatusCreated
	if req.Async {
		status = http.StatusAccepted
	}
	c.JSON(status, handler.NewSuccessResponse(log))
}

type sendBulkRequest struct {
	TemplateKey string                 `json:"template_key" binding:"required"`
	Recipients  []string               `json:"recipients" binding:"required,min=1,dive,email"`
	Context     map[string]interface{} `json:"context"`
}

// SendBulk dispatches to each recipient in turn, always through the
// immediate dispatcher: the result tallies settled sent/failed outcomes,
// which queued mode cannot provide.
func (h *Handler) SendBulk(c *gin.Context) {
	var req sendBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result := dispatch.DispatchBulk(c.Request.Context(), h.immediate, &dispatch.Request{
		TemplateKey: req.TemplateKey,
		Context:     req.Context,
		Initiator:   c.GetString(middleware.ContextSubject),
	}, req.Recipients)

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ListMessages(c *gin.Context) {
	var query struct {
		TemplateKey string `form:"template_key"`
		To          string `form:"to"`
		Status      string `form:"status"`
		Limit       int    `form:"limit"`
		Offset      int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	logs, err := h.logs.List(c.Request.Context(), model.DeliveryLogFilter{
		TemplateKey: query.TemplateKey,
		ToAddress:   query.To,
		Status:      model.DeliveryStatus(query.Status),
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) GetMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid message ID"))
		return
	}

	log, err := h.logs.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(log))
}
