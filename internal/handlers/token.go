package handlers

import (
	"errors"
	"net/http"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.1
	GrantTypeAuthorizationCode = "authorization_code"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-6
	GrantTypeRefreshToken = "refresh_token"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.4
	GrantTypeClientCredentials = "client_credentials"
)

type TokenHandler struct {
	tokenService         *services.TokenService
	authorizationService *services.AuthorizationService
	clientService        *services.ClientService
	config               *config.Config
}

func NewTokenHandler(
	ts *services.TokenService,
	as *services.AuthorizationService,
	cs *services.ClientService,
	cfg *config.Config,
) *TokenHandler {
	return &TokenHandler{
		tokenService:         ts,
		authorizationService: as,
		clientService:        cs,
		config:               cfg,
	}
}

// clientCredentials extracts client authentication from the request.
// HTTP Basic Auth takes precedence over form-body parameters (RFC 6749 §2.3.1).
func clientCredentials(c *gin.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// Token is the token endpoint (RFC 6749 §3.2). It dispatches on grant_type
// and returns the RFC 6749 §5 response format.
func (h *TokenHandler) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	switch grantType {
	case GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(c)
	case GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c)
	case GrantTypeClientCredentials:
		h.handleClientCredentialsGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token, client_credentials",
		})
	}
}

// handleAuthorizationCodeGrant handles the authorization_code grant type (RFC 6749 §4.1.3).
func (h *TokenHandler) handleAuthorizationCodeGrant(c *gin.Context) {
	code := c.PostForm("code")
	redirectURI := c.PostForm("redirect_uri")
	codeVerifier := c.PostForm("code_verifier") // PKCE; empty when the code carries no challenge
	clientID, clientSecret := clientCredentials(c)

	if code == "" || redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and redirect_uri are required",
		})
		return
	}

	// The client must exist before the code is touched; the secret is
	// only checked when one was presented, so public PKCE clients can
	// redeem their codes.
	if _, err := h.clientService.AuthenticateForExchange(clientID, clientSecret); err != nil {
		h.invalidClient(c)
		return
	}

	authCode, err := h.authorizationService.ExchangeCode(
		c.Request.Context(),
		code, clientID, redirectURI, codeVerifier,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuthCodeNotFound),
			errors.Is(err, services.ErrAuthCodeExpired),
			errors.Is(err, services.ErrAuthCodeAlreadyUsed),
			errors.Is(err, services.ErrInvalidRedirectURI),
			errors.Is(err, services.ErrInvalidCodeVerifier):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_grant",
				"error_description": "Authorization code is invalid, expired, or already used",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Code exchange failed",
			})
		}
		return
	}

	pair, err := h.tokenService.IssueAuthorizationCodeTokens(c.Request.Context(), authCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token issuance failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
		"scope":         pair.Scope,
	})
}

// handleRefreshTokenGrant handles the refresh_token grant type (RFC 6749 §6).
func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	requestedScope := c.PostForm("scope") // Optional
	clientID, clientSecret := clientCredentials(c)

	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	if _, err := h.clientService.Authenticate(clientID, clientSecret); err != nil {
		h.invalidClient(c)
		return
	}

	pair, err := h.tokenService.RefreshTokens(
		c.Request.Context(),
		refreshToken, clientID, requestedScope,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRefreshToken):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_grant",
				"error_description": "Refresh token is invalid, expired, or revoked",
			})
		case errors.Is(err, services.ErrInvalidScope):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_scope",
				"error_description": "Requested scope exceeds original grant",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token refresh failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
		"scope":         pair.Scope,
	})
}

// handleClientCredentialsGrant handles the client_credentials grant type (RFC 6749 §4.4).
// No refresh token is issued in the response (RFC 6749 §4.4.3).
func (h *TokenHandler) handleClientCredentialsGrant(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)
	requestedScope := c.PostForm("scope") // Optional

	if clientID == "" || clientSecret == "" {
		h.invalidClient(c)
		return
	}

	pair, err := h.tokenService.IssueClientCredentialsToken(
		c.Request.Context(),
		clientID, clientSecret, requestedScope,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidClientCredentials):
			h.invalidClient(c)
		case errors.Is(err, services.ErrInvalidScope):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_scope",
				"error_description": "Requested scope is not supported",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token issuance failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": pair.AccessToken,
		"token_type":   pair.TokenType,
		"expires_in":   pair.ExpiresIn,
		"scope":        pair.Scope,
	})
}

// Revoke is the token revocation endpoint (RFC 7009). It returns 200 for
// both successful revocation and unknown tokens to prevent token scanning.
func (h *TokenHandler) Revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token parameter is required",
		})
		return
	}

	clientID, clientSecret := clientCredentials(c)
	if _, err := h.clientService.Authenticate(clientID, clientSecret); err != nil {
		h.invalidClient(c)
		return
	}

	// token_type_hint is accepted but not needed; both token kinds are
	// looked up by hash.
	_ = h.tokenService.Revoke(c.Request.Context(), token, clientID)
	c.Status(http.StatusOK)
}

// invalidClient writes the RFC 6749 §5.2 invalid_client response with the
// required WWW-Authenticate header.
func (h *TokenHandler) invalidClient(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="oauth"`)
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_client",
		"error_description": "Client authentication failed",
	})
}
