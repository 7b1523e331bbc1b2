package handlers

import (
	"net/http"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"

	"github.com/gin-gonic/gin"
)

type DiscoveryHandler struct {
	config *config.Config
	store  store.Store
}

func NewDiscoveryHandler(cfg *config.Config, s store.Store) *DiscoveryHandler {
	return &DiscoveryHandler{config: cfg, store: s}
}

// Metadata serves the authorization server metadata document (RFC 8414) at
// /.well-known/oauth-authorization-server. All endpoint URLs are derived
// from the configured base URL.
func (h *DiscoveryHandler) Metadata(c *gin.Context) {
	base := h.config.BaseURL

	c.JSON(http.StatusOK, gin.H{
		"issuer":                 base,
		"authorization_endpoint": base + "/oauth/authorize",
		"token_endpoint":         base + "/oauth/token",
		"introspection_endpoint": base + "/oauth/validate",
		"revocation_endpoint":    base + "/oauth/revoke",
		"response_types_supported": []string{
			"code",
		},
		"grant_types_supported": []string{
			GrantTypeAuthorizationCode,
			GrantTypeRefreshToken,
			GrantTypeClientCredentials,
		},
		"token_endpoint_auth_methods_supported": []string{
			"client_secret_basic",
			"client_secret_post",
		},
		"scopes_supported":                 h.config.SupportedScopes,
		"code_challenge_methods_supported": []string{"S256", "plain"},
	})
}

// Health reports server liveness and store reachability.
func (h *DiscoveryHandler) Health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
