package services

import (
	"context"
	"testing"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/metrics"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:9000",
		ResourceURL:            "http://localhost:8006",
		JWTSecret:              "test-secret",
		JWTAlgorithm:           "HS256",
		TokenExpiration:        time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		AuthCodeExpiration:     10 * time.Minute,
		ClientID:               "test-client-id",
		ClientSecret:           "test-client-secret",
		ClientRedirectURIs:     []string{"*"},
		DefaultScopes:          "mcp:tools:read mcp:tools:write",
		AuthorizeScopes:        "read write",
		SupportedScopes:        []string{"mcp:tools:read", "mcp:tools:write", "mcp:tools:call"},
	}
}

func newTestServices(t *testing.T) (*ClientService, *AuthorizationService, *TokenService) {
	t.Helper()
	cfg := testConfig()
	s := store.NewMemoryStore()
	m := metrics.NewNoopMetrics()

	codec, err := token.NewCodec(cfg)
	require.NoError(t, err)

	clients := NewClientService(s, cfg)
	require.NoError(t, clients.Seed())

	auth := NewAuthorizationService(s, cfg, clients, m)
	tokens := NewTokenService(s, cfg, clients, codec, m)
	return clients, auth, tokens
}

func TestClientServiceAuthenticate(t *testing.T) {
	clients, _, _ := newTestServices(t)

	client, err := clients.Authenticate("test-client-id", "test-client-secret")
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", client.ClientID)

	_, err = clients.Authenticate("test-client-id", "wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)

	_, err = clients.Authenticate("unknown-client", "test-client-secret")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)

	_, err = clients.Authenticate("test-client-id", "")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)
}

func TestClientServiceAuthenticateForExchange(t *testing.T) {
	clients, _, _ := newTestServices(t)

	// Public clients carry no secret
	client, err := clients.AuthenticateForExchange("test-client-id", "")
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", client.ClientID)

	// A presented secret must still match
	_, err = clients.AuthenticateForExchange("test-client-id", "wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)

	_, err = clients.AuthenticateForExchange("unknown-client", "")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)

	_, err = clients.AuthenticateForExchange("", "")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	_, auth, tokens := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "read write", req.Scopes)

	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(code), 32)

	record, err := auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	require.NoError(t, err)
	assert.Equal(t, "read write", record.Scopes)

	pair, err := tokens.IssueAuthorizationCodeTokens(ctx, record)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	// A code redeems exactly once
	_, err = auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	assert.ErrorIs(t, err, ErrAuthCodeAlreadyUsed)
}

func TestAuthorizationRequestValidation(t *testing.T) {
	_, auth, _ := newTestServices(t)

	_, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/cb", "token", "", "", "")
	assert.ErrorIs(t, err, ErrUnsupportedResponseType)

	_, err = auth.ValidateAuthorizationRequest(
		"unknown-client", "http://localhost:3000/cb", "code", "", "", "")
	assert.ErrorIs(t, err, ErrUnauthorizedClient)

	_, err = auth.ValidateAuthorizationRequest(
		"test-client-id", "", "code", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidRedirectURI)

	_, err = auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/cb", "code", "", "challenge", "S512")
	assert.Error(t, err)
}

func TestExchangeCodeRedirectURIMismatch(t *testing.T) {
	ctx := context.Background()
	_, auth, _ := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", "", "")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)

	_, err = auth.ExchangeCode(ctx, code, "test-client-id", "http://evil.example/cb", "")
	assert.ErrorIs(t, err, ErrInvalidRedirectURI)
}

func TestExchangeCodePKCE(t *testing.T) {
	ctx := context.Background()
	_, auth, _ := newTestServices(t)

	// S256: challenge = BASE64URL(SHA256(verifier))
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", challenge, "S256")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)

	// Wrong verifier is rejected and does not consume the code
	_, err = auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCodeVerifier)

	_, err = auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", verifier)
	assert.NoError(t, err)
}

func TestExchangeCodePlainPKCE(t *testing.T) {
	ctx := context.Background()
	_, auth, _ := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", "plain-challenge", "plain")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)

	_, err = auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "plain-challenge")
	assert.NoError(t, err)
}

func TestRefreshTokenRotation(t *testing.T) {
	ctx := context.Background()
	_, auth, tokens := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "read write", "", "")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)
	record, err := auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	require.NoError(t, err)
	pair, err := tokens.IssueAuthorizationCodeTokens(ctx, record)
	require.NoError(t, err)

	rotated, err := tokens.RefreshTokens(ctx, pair.RefreshToken, "test-client-id", "")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, "read write", rotated.Scope)

	// The superseded pair is dead
	_, err = tokens.RefreshTokens(ctx, pair.RefreshToken, "test-client-id", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	result := tokens.Introspect(ctx, pair.AccessToken)
	assert.False(t, result.Active)

	// The new access token is live
	result = tokens.Introspect(ctx, rotated.AccessToken)
	assert.True(t, result.Active)
}

func TestRefreshTokenClientIsolation(t *testing.T) {
	ctx := context.Background()
	_, auth, tokens := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", "", "")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)
	record, err := auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	require.NoError(t, err)
	pair, err := tokens.IssueAuthorizationCodeTokens(ctx, record)
	require.NoError(t, err)

	_, err = tokens.RefreshTokens(ctx, pair.RefreshToken, "other-client", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshTokenScopeNarrowing(t *testing.T) {
	ctx := context.Background()
	_, auth, tokens := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "read write", "", "")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)
	record, err := auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	require.NoError(t, err)
	pair, err := tokens.IssueAuthorizationCodeTokens(ctx, record)
	require.NoError(t, err)

	rotated, err := tokens.RefreshTokens(ctx, pair.RefreshToken, "test-client-id", "read")
	require.NoError(t, err)
	assert.Equal(t, "read", rotated.Scope)

	// Widening is rejected
	_, err = tokens.RefreshTokens(ctx, rotated.RefreshToken, "test-client-id", "read write admin")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestClientCredentialsGrant(t *testing.T) {
	ctx := context.Background()
	_, _, tokens := newTestServices(t)

	pair, err := tokens.IssueClientCredentialsToken(ctx, "test-client-id", "test-client-secret", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, "mcp:tools:read mcp:tools:write", pair.Scope)

	result := tokens.Introspect(ctx, pair.AccessToken)
	assert.True(t, result.Active)
	assert.Equal(t, "test-client-id", result.ClientID)
	assert.Equal(t, "test-client-id", result.Sub)
	assert.Equal(t, "http://localhost:8006", result.Aud)
	assert.NotEmpty(t, result.Jti)
	assert.Equal(t, "mcp:tools:read mcp:tools:write", result.Scope)
}

func TestClientCredentialsGrantBadSecret(t *testing.T) {
	ctx := context.Background()
	_, _, tokens := newTestServices(t)

	_, err := tokens.IssueClientCredentialsToken(ctx, "test-client-id", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)
}

func TestClientCredentialsGrantScopeValidation(t *testing.T) {
	ctx := context.Background()
	_, _, tokens := newTestServices(t)

	pair, err := tokens.IssueClientCredentialsToken(
		ctx, "test-client-id", "test-client-secret", "mcp:tools:read")
	require.NoError(t, err)
	assert.Equal(t, "mcp:tools:read", pair.Scope)

	_, err = tokens.IssueClientCredentialsToken(
		ctx, "test-client-id", "test-client-secret", "mcp:admin")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestIntrospectUnknownToken(t *testing.T) {
	ctx := context.Background()
	_, _, tokens := newTestServices(t)

	result := tokens.Introspect(ctx, "garbage-token")
	assert.False(t, result.Active)
	assert.Empty(t, result.ClientID)
	assert.Equal(t, "invalid_token", result.Error)
	assert.NotEmpty(t, result.ErrorDescription)

	result = tokens.Introspect(ctx, "")
	assert.False(t, result.Active)
	assert.Equal(t, "invalid_request", result.Error)
}

func TestIntrospectExpiredJWT(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenExpiration = -time.Minute
	s := store.NewMemoryStore()
	m := metrics.NewNoopMetrics()
	codec, err := token.NewCodec(cfg)
	require.NoError(t, err)
	clients := NewClientService(s, cfg)
	require.NoError(t, clients.Seed())
	tokens := NewTokenService(s, cfg, clients, codec, m)

	pair, err := tokens.IssueClientCredentialsToken(ctx, "test-client-id", "test-client-secret", "")
	require.NoError(t, err)

	result := tokens.Introspect(ctx, pair.AccessToken)
	assert.False(t, result.Active)
	assert.Equal(t, "token_expired", result.Error)
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	_, _, tokens := newTestServices(t)

	pair, err := tokens.IssueClientCredentialsToken(ctx, "test-client-id", "test-client-secret", "")
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, pair.AccessToken, "test-client-id"))
	result := tokens.Introspect(ctx, pair.AccessToken)
	assert.False(t, result.Active)

	// Unknown tokens revoke without error
	assert.NoError(t, tokens.Revoke(ctx, "never-issued", "test-client-id"))
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	_, auth, tokens := newTestServices(t)

	req, err := auth.ValidateAuthorizationRequest(
		"test-client-id", "http://localhost:3000/callback", "code", "", "", "")
	require.NoError(t, err)
	code, err := auth.IssueCode(ctx, req)
	require.NoError(t, err)
	record, err := auth.ExchangeCode(ctx, code, "test-client-id", "http://localhost:3000/callback", "")
	require.NoError(t, err)
	pair, err := tokens.IssueAuthorizationCodeTokens(ctx, record)
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, pair.RefreshToken, "test-client-id"))

	_, err = tokens.RefreshTokens(ctx, pair.RefreshToken, "test-client-id", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	result := tokens.Introspect(ctx, pair.AccessToken)
	assert.False(t, result.Active)
}

func TestScopeSubset(t *testing.T) {
	assert.True(t, scopeSubset("read write", ""))
	assert.True(t, scopeSubset("read write", "read"))
	assert.True(t, scopeSubset("read write", "write read"))
	assert.False(t, scopeSubset("read", "read write"))
	assert.False(t, scopeSubset("", "read"))
}
