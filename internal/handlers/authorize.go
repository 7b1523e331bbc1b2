package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthorizeHandler struct {
	authorizationService *services.AuthorizationService
	config               *config.Config
}

func NewAuthorizeHandler(
	as *services.AuthorizationService,
	cfg *config.Config,
) *AuthorizeHandler {
	return &AuthorizeHandler{
		authorizationService: as,
		config:               cfg,
	}
}

// Authorize is the authorization endpoint (RFC 6749 §4.1.1). There is no
// login or consent page: the request is validated and a code is issued
// immediately, which is what clients exercising the flow expect here.
//
// Validation failures that would make the redirect itself unsafe (unknown
// client, unregistered redirect_uri) are answered directly with 400; all
// other errors are reported to the client via the redirect (RFC 6749 §4.1.2.1).
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	scope := c.Query("scope")
	state := c.Query("state")
	codeChallenge := c.Query("code_challenge")
	codeChallengeMethod := c.Query("code_challenge_method")

	req, err := h.authorizationService.ValidateAuthorizationRequest(
		clientID, redirectURI, responseType, scope, codeChallenge, codeChallengeMethod,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnauthorizedClient):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_client",
				"error_description": "Unknown client",
			})
		case errors.Is(err, services.ErrInvalidRedirectURI):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "redirect_uri is not registered for this client",
			})
		case errors.Is(err, services.ErrUnsupportedResponseType):
			redirectError(c, redirectURI, state, "unsupported_response_type")
		default:
			redirectError(c, redirectURI, state, "invalid_request")
		}
		return
	}

	code, err := h.authorizationService.IssueCode(c.Request.Context(), req)
	if err != nil {
		redirectError(c, redirectURI, state, "server_error")
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "redirect_uri is not a valid URL",
		})
		return
	}

	query := target.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	target.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, target.String())
}

// redirectError sends an RFC 6749 §4.1.2.1 error response via the redirect
// URI when it is parseable, and falls back to a direct 400 when it is not.
func redirectError(c *gin.Context, redirectURI, state, errCode string) {
	target, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errCode})
		return
	}

	query := target.Query()
	query.Set("error", errCode)
	if state != "" {
		query.Set("state", state)
	}
	target.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, target.String())
}
