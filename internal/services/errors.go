package services

import "errors"

// Errors returned by the authorization and token services. Handlers map
// these onto the RFC 6749 error vocabulary and status codes.
var (
	// Authorization request validation
	ErrUnsupportedResponseType = errors.New("unsupported response_type")
	ErrUnauthorizedClient      = errors.New("unknown or unauthorized client")
	ErrInvalidRedirectURI      = errors.New("redirect_uri is not registered for this client")
	ErrInvalidScope            = errors.New("requested scope exceeds the granted scope")

	// Code exchange
	ErrAuthCodeNotFound    = errors.New("authorization code not found")
	ErrAuthCodeExpired     = errors.New("authorization code has expired")
	ErrAuthCodeAlreadyUsed = errors.New("authorization code has already been used")
	ErrInvalidCodeVerifier = errors.New("code_verifier does not match code_challenge")

	// Client authentication
	ErrInvalidClientCredentials = errors.New("invalid client credentials")

	// Refresh grant
	ErrInvalidRefreshToken = errors.New("refresh token is invalid, expired, or revoked")
)
