package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notify-api/internal/auth"
	"github.com/jwalitptl/notify-api/internal/handler"
)

const (
	ContextSubject = "subject"
	ContextScopes  = "scopes"
)

type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and sets the calling service in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextScopes, claims.Scopes)
		c.Next()
	}
}

// RequireScope checks that the token carries the given scope
func (m *AuthMiddleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, _ := c.Get(ContextScopes)
		claims := auth.Claims{}
		if s, ok := scopes.([]string); ok {
			claims.Scopes = s
		}
		if !claims.HasScope(scope) {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient scope"))
			c.Abort()
			return
		}
		c.Next()
	}
}
