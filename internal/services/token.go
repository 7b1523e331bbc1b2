package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/metrics"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/token"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/util"

	"github.com/google/uuid"
)

// TokenPair is the issuance result handed back to the token endpoint.
// RefreshToken is empty for grants that do not issue one.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// Introspection is the introspection endpoint response body (RFC 7662).
// Inactive results carry an error code explaining the rejection
// (token_expired, token_revoked, token_inactive, invalid_token).
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Jti       string `json:"jti,omitempty"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenService issues, refreshes, introspects, and revokes access tokens.
// Authorization code and refresh grants produce opaque token pairs;
// client_credentials produces a signed JWT with a stored shadow record so
// the token stays revocable.
type TokenService struct {
	store   store.Store
	config  *config.Config
	clients *ClientService
	codec   *token.Codec
	metrics metrics.Recorder
}

func NewTokenService(
	s store.Store,
	cfg *config.Config,
	clients *ClientService,
	codec *token.Codec,
	m metrics.Recorder,
) *TokenService {
	return &TokenService{
		store:   s,
		config:  cfg,
		clients: clients,
		codec:   codec,
		metrics: m,
	}
}

// IssueAuthorizationCodeTokens issues an opaque access and refresh token
// pair for a consumed authorization code.
func (s *TokenService) IssueAuthorizationCodeTokens(
	ctx context.Context,
	authCode *models.AuthorizationCode,
) (*TokenPair, error) {
	return s.issueOpaquePair(authCode.ClientID, authCode.Scopes, models.GrantAuthorizationCode)
}

// RefreshTokens rotates a refresh token: the presented token and its access
// token are invalidated and a fresh pair is issued. A refresh token is only
// visible to the client it was issued to.
func (s *TokenService) RefreshTokens(
	ctx context.Context,
	rawRefreshToken, clientID, requestedScope string,
) (*TokenPair, error) {
	record, err := s.store.GetTokenByRefreshHash(util.SHA256Hex(rawRefreshToken), clientID)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidRefreshToken
	}

	if record.IsRevoked() {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidRefreshToken
	}

	// The refresh token outlives the access token it came with, but not
	// the configured refresh lifetime.
	if time.Since(record.CreatedAt) > s.config.RefreshTokenExpiration {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidRefreshToken
	}

	// Scope may be narrowed on refresh, never widened
	scope := record.Scopes
	if requestedScope != "" {
		if !scopeSubset(record.Scopes, requestedScope) {
			s.metrics.RecordTokenRefresh(false)
			return nil, ErrInvalidScope
		}
		scope = requestedScope
	}

	start := time.Now()
	access, err := util.CryptoRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := util.CryptoRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	replacement := &models.AccessToken{
		ID:               uuid.NewString(),
		TokenHash:        util.SHA256Hex(access),
		RefreshTokenHash: util.SHA256Hex(refresh),
		ClientID:         clientID,
		Scopes:           scope,
		GrantType:        models.GrantRefreshToken,
		Status:           models.TokenStatusActive,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(s.config.TokenExpiration),
	}

	// Rotation is atomic: of two concurrent refreshes with the same token,
	// exactly one replacement survives.
	if err := s.store.RotateToken(record.ID, replacement); err != nil {
		s.metrics.RecordTokenRefresh(false)
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to rotate token: %w", err)
	}

	s.metrics.RecordTokenRefresh(true)
	s.metrics.RecordTokenIssued("access", models.GrantRefreshToken, time.Since(start))

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.TokenExpiration.Seconds()),
		Scope:        scope,
	}, nil
}

// IssueClientCredentialsToken authenticates the client and mints a signed
// JWT access token. No refresh token is issued for this grant.
func (s *TokenService) IssueClientCredentialsToken(
	ctx context.Context,
	clientID, clientSecret, requestedScope string,
) (*TokenPair, error) {
	client, err := s.clients.Authenticate(clientID, clientSecret)
	if err != nil {
		return nil, ErrInvalidClientCredentials
	}

	scope := requestedScope
	if scope == "" {
		scope = s.config.DefaultScopes
	} else if !scopeSubset(strings.Join(s.config.SupportedScopes, " "), scope) {
		return nil, ErrInvalidScope
	}

	start := time.Now()
	signed, claims, err := s.codec.Mint(client.ClientID, scope, models.GrantClientCredentials)
	if err != nil {
		log.Printf("[Token] JWT minting failed client_id=%s: %v", client.ClientID, err)
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	// Shadow record keyed by jti keeps the JWT revocable and countable
	record := &models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex(signed),
		JTI:       claims.ID,
		ClientID:  client.ClientID,
		Scopes:    scope,
		GrantType: models.GrantClientCredentials,
		Status:    models.TokenStatusActive,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.store.CreateToken(record); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	s.metrics.RecordTokenIssued("access", models.GrantClientCredentials, time.Since(start))

	return &TokenPair{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.codec.TTL().Seconds()),
		Scope:       scope,
	}, nil
}

// Introspect reports whether a token is active and, when it is, its claims
// (RFC 7662). Inactive results name the rejection cause so callers can
// tell an expired token from a revoked one.
func (s *TokenService) Introspect(ctx context.Context, rawToken string) *Introspection {
	start := time.Now()
	result := s.introspect(rawToken)

	outcome := "inactive"
	if result.Active {
		outcome = "active"
	}
	s.metrics.RecordIntrospection(outcome, time.Since(start))
	return result
}

func (s *TokenService) introspect(rawToken string) *Introspection {
	if rawToken == "" {
		return inactiveResult("invalid_request", "Missing token")
	}

	record, err := s.store.GetTokenByHash(util.SHA256Hex(rawToken))
	if err != nil {
		// Not stored by hash; it may still be a valid JWT whose shadow
		// record is keyed by jti.
		claims, perr := s.codec.Parse(rawToken, false)
		if perr != nil {
			if errors.Is(perr, token.ErrTokenExpired) {
				return inactiveResult("token_expired", "Token has expired")
			}
			return inactiveResult("invalid_token", "Token is malformed or unknown")
		}
		record, err = s.store.GetTokenByJTI(claims.ID)
		if err != nil {
			return inactiveResult("token_revoked", "Token has been revoked")
		}
	}

	switch {
	case record.IsRevoked():
		return inactiveResult("token_revoked", "Token has been revoked")
	case record.IsExpired():
		return inactiveResult("token_expired", "Token has expired")
	case !record.IsActive():
		return inactiveResult("token_inactive", "Token is not active")
	}

	result := &Introspection{
		Active:    true,
		Scope:     record.Scopes,
		ClientID:  record.ClientID,
		TokenType: "Bearer",
		Exp:       record.ExpiresAt.Unix(),
		Iat:       record.CreatedAt.Unix(),
		Sub:       record.ClientID,
		Iss:       s.config.BaseURL,
	}

	// JWT-backed tokens carry richer claims; audience is reported but
	// deliberately not enforced here.
	if record.JTI != "" {
		if claims, err := s.codec.Parse(rawToken, false); err == nil {
			result.Jti = claims.ID
			result.Sub = claims.Subject
			if len(claims.Audience) > 0 {
				result.Aud = claims.Audience[0]
			}
		}
	}

	return result
}

// Revoke invalidates a token presented by its raw value. Per RFC 7009 an
// unknown token is not an error, and a client can only revoke tokens that
// were issued to it.
func (s *TokenService) Revoke(ctx context.Context, rawToken, clientID string) error {
	if rawToken == "" {
		return nil
	}

	hash := util.SHA256Hex(rawToken)
	record, err := s.store.GetTokenByHash(hash)
	if err != nil {
		// Maybe a refresh token was presented
		record, err = s.store.GetTokenByRefreshHash(hash, clientID)
		if err != nil {
			return nil
		}
	}
	if record.ClientID != clientID {
		return nil
	}

	if err := s.store.RevokeToken(record.ID); err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil
		}
		return err
	}

	s.metrics.RecordTokenRevoked("access", "client_request")
	return nil
}

// CountActiveTokens reports the number of live tokens, for the metrics gauge.
func (s *TokenService) CountActiveTokens() (int64, error) {
	return s.store.CountActiveTokens()
}

func (s *TokenService) issueOpaquePair(clientID, scope, grantType string) (*TokenPair, error) {
	start := time.Now()

	access, err := util.CryptoRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := util.CryptoRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &models.AccessToken{
		ID:               uuid.NewString(),
		TokenHash:        util.SHA256Hex(access),
		RefreshTokenHash: util.SHA256Hex(refresh),
		ClientID:         clientID,
		Scopes:           scope,
		GrantType:        grantType,
		Status:           models.TokenStatusActive,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(s.config.TokenExpiration),
	}
	if err := s.store.CreateToken(record); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	s.metrics.RecordTokenIssued("access", grantType, time.Since(start))

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.TokenExpiration.Seconds()),
		Scope:        scope,
	}, nil
}

// scopeSubset checks whether every requested scope was originally granted
func inactiveResult(errCode, description string) *Introspection {
	return &Introspection{
		Active:           false,
		Error:            errCode,
		ErrorDescription: description,
	}
}

func scopeSubset(granted, requested string) bool {
	if requested == "" {
		return true
	}
	grantedSet := make(map[string]bool)
	for _, scope := range strings.Fields(granted) {
		grantedSet[scope] = true
	}
	for _, scope := range strings.Fields(requested) {
		if !grantedSet[scope] {
			return false
		}
	}
	return true
}
