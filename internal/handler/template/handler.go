package template

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-api/internal/handler"
	"github.com/jwalitptl/notify-api/internal/model"
	tmpl "github.com/jwalitptl/notify-api/internal/template"
)

type Handler struct {
	store    *tmpl.Store
	renderer *tmpl.Renderer
}

func NewHandler(store *tmpl.Store, renderer *tmpl.Renderer) *Handler {
	return &Handler{store: store, renderer: renderer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	templates := r.Group("/templates")
	{
		templates.POST("", h.CreateTemplate)
		templates.GET("", h.ListTemplates)
		templates.GET("/:key", h.GetTemplate)
		templates.PUT("/:key", h.UpdateTemplate)
		templates.DELETE("/:key", h.DeleteTemplate)
		templates.POST("/:key/preview", h.PreviewTemplate)
	}
}

type templateRequest struct {
	Key         string                 `json:"key" binding:"required,templatekey"`
	Name        string                 `json:"name" binding:"required"`
	Description string                 `json:"description"`
	Subject     string                 `json:"subject" binding:"required"`
	HTMLContent string                 `json:"html_content"`
	TextContent string                 `json:"text_content"`
	Category    string                 `json:"category"`
	Language    string                 `json:"language"`
	Active      *bool                  `json:"active"`
	Variables   map[string]interface{} `json:"variables"`
}

func (r *templateRequest) toModel() *model.EmailTemplate {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	variables, _ := json.Marshal(r.Variables)

	return &model.EmailTemplate{
		Key:         r.Key,
		Name:        r.Name,
		Description: r.Description,
		Subject:     r.Subject,
		HTMLContent: r.HTMLContent,
		TextContent: r.TextContent,
		Category:    r.Category,
		Language:    r.Language,
		Active:      active,
		Variables:   variables,
	}
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t := req.toModel()
	if err := h.store.Create(c.Request.Context(), t); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(t))
}

func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.store.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(templates))
}

func (h *Handler) GetTemplate(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	// The path parameter is authoritative; keys are immutable.
	if req.Key != c.Param("key") {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("template key cannot be changed"))
		return
	}

	t := req.toModel()
	if err := h.store.Update(c.Request.Context(), t); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("key")); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type previewRequest struct {
	Context map[string]interface{} `json:"context"`
}

// PreviewTemplate renders the template against the supplied context without
// sending anything or touching the delivery logs.
func (h *Handler) PreviewTemplate(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.store.Resolve(c.Request.Context(), c.Param("key"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	rendered, err := h.renderer.Render(t, req.Context)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(rendered))
}
