package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/metrics"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/util"
)

// AuthorizationRequest is a validated authorization endpoint request.
type AuthorizationRequest struct {
	Client              *models.Client
	RedirectURI         string
	Scopes              string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizationService implements the authorization code flow: request
// validation, code issuance, and the later code-for-token exchange.
type AuthorizationService struct {
	store   store.Store
	config  *config.Config
	clients *ClientService
	metrics metrics.Recorder
}

func NewAuthorizationService(
	s store.Store,
	cfg *config.Config,
	clients *ClientService,
	m metrics.Recorder,
) *AuthorizationService {
	return &AuthorizationService{
		store:   s,
		config:  cfg,
		clients: clients,
		metrics: m,
	}
}

// ValidateAuthorizationRequest validates all parameters of an incoming
// authorization request. Returns the parsed AuthorizationRequest on success.
func (s *AuthorizationService) ValidateAuthorizationRequest(
	clientID, redirectURI, responseType, scope, codeChallenge, codeChallengeMethod string,
) (*AuthorizationRequest, error) {
	// 1. response_type must be "code"
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	// 2. Client must exist
	client, err := s.clients.Lookup(clientID)
	if err != nil {
		return nil, ErrUnauthorizedClient
	}

	// 3. redirect_uri must match one of the registered URIs
	if !client.AllowsRedirectURI(redirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	// 4. Default scope when the client asked for nothing specific
	if scope == "" {
		scope = s.config.AuthorizeScopes
	}

	// 5. PKCE method, when present, must be one we can verify
	if codeChallengeMethod != "" && codeChallengeMethod != "S256" &&
		codeChallengeMethod != "plain" {
		return nil, ErrUnsupportedResponseType
	}
	if codeChallengeMethod != "" && codeChallenge == "" {
		return nil, ErrInvalidCodeVerifier
	}

	return &AuthorizationRequest{
		Client:              client,
		RedirectURI:         redirectURI,
		Scopes:              scope,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}, nil
}

// IssueCode generates a one-time authorization code and saves it to the store.
// Returns the plaintext code, which is only ever sent in the redirect; the
// store keeps its SHA-256 hash.
func (s *AuthorizationService) IssueCode(
	ctx context.Context,
	req *AuthorizationRequest,
) (string, error) {
	plainCode, err := util.CryptoRandomString(32)
	if err != nil {
		s.metrics.RecordAuthorizationCodeIssued(false)
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	record := &models.AuthorizationCode{
		CodeHash:            util.SHA256Hex(plainCode),
		ClientID:            req.Client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(s.config.AuthCodeExpiration),
	}

	if err := s.store.CreateAuthorizationCode(record); err != nil {
		s.metrics.RecordAuthorizationCodeIssued(false)
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.metrics.RecordAuthorizationCodeIssued(true)
	return plainCode, nil
}

// ExchangeCode validates a plaintext authorization code and consumes it.
// The caller is responsible for issuing tokens after this returns.
// Consumption is atomic: of two concurrent exchanges of the same code,
// exactly one succeeds.
func (s *AuthorizationService) ExchangeCode(
	ctx context.Context,
	plainCode, clientID, redirectURI, codeVerifier string,
) (*models.AuthorizationCode, error) {
	codeHash := util.SHA256Hex(plainCode)

	record, err := s.store.GetAuthorizationCodeByHash(codeHash)
	if err != nil {
		s.metrics.RecordAuthorizationCodeExchange("invalid")
		return nil, ErrAuthCodeNotFound
	}

	if record.IsUsed() {
		s.metrics.RecordAuthorizationCodeExchange("used")
		return nil, ErrAuthCodeAlreadyUsed
	}
	if record.IsExpired() {
		s.metrics.RecordAuthorizationCodeExchange("expired")
		return nil, ErrAuthCodeExpired
	}
	if record.ClientID != clientID {
		// Don't reveal the code exists for another client
		s.metrics.RecordAuthorizationCodeExchange("invalid")
		return nil, ErrAuthCodeNotFound
	}
	if record.RedirectURI != redirectURI {
		s.metrics.RecordAuthorizationCodeExchange("invalid")
		return nil, ErrInvalidRedirectURI
	}

	// PKCE verification when the code was bound to a challenge
	if record.HasPKCE() {
		if !verifyPKCE(record.CodeChallenge, record.CodeChallengeMethod, codeVerifier) {
			s.metrics.RecordAuthorizationCodeExchange("invalid")
			return nil, ErrInvalidCodeVerifier
		}
	}

	// Consume atomically; the loser of a concurrent exchange sees
	// ErrCodeAlreadyUsed from the store.
	consumed, err := s.store.ConsumeAuthorizationCode(codeHash)
	if err != nil {
		if errors.Is(err, store.ErrCodeAlreadyUsed) {
			s.metrics.RecordAuthorizationCodeExchange("used")
			return nil, ErrAuthCodeAlreadyUsed
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	s.metrics.RecordAuthorizationCodeExchange("success")
	return consumed, nil
}

// verifyPKCE validates code_verifier against the stored code_challenge
func verifyPKCE(codeChallenge, method, codeVerifier string) bool {
	if codeVerifier == "" {
		return false
	}
	switch strings.ToUpper(method) {
	case "S256":
		sum := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return computed == codeChallenge
	case "PLAIN", "":
		return codeVerifier == codeChallenge
	default:
		return false
	}
}
