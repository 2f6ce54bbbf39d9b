package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-api/internal/mail"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/template"
	apperrors "github.com/jwalitptl/notify-api/pkg/errors"
)

// RespondError maps pipeline errors onto HTTP statuses. Unknown templates
// and missing records are the caller's mistake, render failures mean the
// stored template is unusable for the given context, and transport failures
// are an upstream problem.
func RespondError(c *gin.Context, err error) {
	var renderErr *template.RenderError
	var transportErr *mail.TransportError
	var appErr *apperrors.AppError

	switch {
	case errors.As(err, &appErr):
		c.JSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
	case errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case errors.As(err, &renderErr):
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(err.Error()))
	case errors.As(err, &transportErr):
		c.JSON(http.StatusBadGateway, NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
	}
}
