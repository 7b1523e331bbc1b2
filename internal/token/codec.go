// Package token mints and verifies the JWT access tokens issued by the
// client_credentials grant. Tokens are signed with a shared HMAC secret,
// which keeps the resource server able to validate them offline while the
// introspection endpoint remains the source of truth for revocation.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload carried by a signed access token.
type Claims struct {
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	GrantType string `json:"grant_type,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and parses access tokens with a single symmetric key.
type Codec struct {
	secret   []byte
	method   jwt.SigningMethod
	issuer   string
	audience string
	ttl      time.Duration
}

// NewCodec builds a codec from the server configuration. Only HMAC
// methods are supported; the method name comes from JWT_ALGORITHM.
func NewCodec(cfg *config.Config) (*Codec, error) {
	method := jwt.GetSigningMethod(cfg.JWTAlgorithm)
	if method == nil {
		return nil, fmt.Errorf("token: unknown signing method %q", cfg.JWTAlgorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token: signing method %q is not HMAC", cfg.JWTAlgorithm)
	}

	return &Codec{
		secret:   []byte(cfg.JWTSecret),
		method:   method,
		issuer:   cfg.BaseURL,
		audience: cfg.ResourceURL,
		ttl:      cfg.TokenExpiration,
	}, nil
}

// Mint signs a fresh access token for the client and returns the compact
// serialization together with the claims that went into it. The jti is a
// new UUID so a matching record can be stored for revocation checks.
func (c *Codec) Mint(clientID, scope, grantType string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		Scope:     scope,
		ClientID:  clientID,
		GrantType: grantType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   clientID,
			Audience:  jwt.ClaimStrings{c.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies the signature and standard claims of a compact token.
// Audience checking is optional: the introspection endpoint accepts tokens
// regardless of who they were minted for, while the resource middleware
// insists they were minted for it.
func (c *Codec) Parse(tokenString string, verifyAudience bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	}
	if verifyAudience {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, translateError(err)
	}
	return claims, nil
}

// TTL reports the configured access token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

func translateError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	default:
		return err
	}
}
