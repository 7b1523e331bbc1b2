package token

import "errors"

var (
	ErrTokenExpired     = errors.New("token: token expired")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrTokenMalformed   = errors.New("token: malformed token")
	ErrInvalidAudience  = errors.New("token: invalid audience")
	ErrInvalidIssuer    = errors.New("token: invalid issuer")
)
