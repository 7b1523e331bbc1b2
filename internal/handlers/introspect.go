package handlers

import (
	"net/http"
	"strings"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/services"

	"github.com/gin-gonic/gin"
)

type IntrospectHandler struct {
	tokenService *services.TokenService
}

func NewIntrospectHandler(ts *services.TokenService) *IntrospectHandler {
	return &IntrospectHandler{tokenService: ts}
}

// Introspect is the token introspection endpoint (RFC 7662). The token
// under test is carried in the Authorization header as a Bearer value, with
// the RFC's form parameter accepted as a fallback. An active token gets a
// 200 with its claims; anything else gets a 401 with active:false plus an
// error code naming the rejection cause.
func (h *IntrospectHandler) Introspect(c *gin.Context) {
	rawToken := bearerToken(c)
	if rawToken == "" {
		rawToken = c.PostForm("token")
	}
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"active":            false,
			"error":             "invalid_request",
			"error_description": "Missing Bearer token",
		})
		return
	}

	result := h.tokenService.Introspect(c.Request.Context(), rawToken)
	if !result.Active {
		c.JSON(http.StatusUnauthorized, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// bearerToken extracts the Bearer value from the Authorization header,
// or returns an empty string.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
