package verifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GrantContextKey is the key used to store the verified grant in the
// request context.
type GrantContextKey struct{}

// GrantFromContext retrieves the verified grant placed by the middleware.
func GrantFromContext(ctx context.Context) (*AccessGrant, bool) {
	grant, ok := ctx.Value(GrantContextKey{}).(*AccessGrant)
	return grant, ok
}

// MiddlewareConfig wires the verifier into an HTTP middleware.
type MiddlewareConfig struct {
	Verifier *Verifier
	// Realm is reported in the WWW-Authenticate challenge, normally the
	// authorization server's issuer URL.
	Realm string
	// ResourceMetadataURL points clients at the protected resource
	// metadata document (RFC 9728).
	ResourceMetadataURL string
	// RequiredScopes must all be present on the grant; missing scopes
	// yield 403 insufficient_scope.
	RequiredScopes []string
}

// Middleware returns an HTTP middleware that rejects requests without a
// valid bearer token. Challenges follow RFC 6750 §3 with the RFC 9728
// resource_metadata parameter so clients can discover the authorization
// server.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", buildWWWAuthenticate(cfg, false, ""))
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				w.Header().Set("WWW-Authenticate", buildWWWAuthenticate(cfg, false, ""))
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			grant := cfg.Verifier.Verify(r.Context(), tokenString)
			if grant == nil {
				w.Header().Set("WWW-Authenticate",
					buildWWWAuthenticate(cfg, true, "token is invalid, expired, or revoked"))
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			for _, required := range cfg.RequiredScopes {
				if !grant.HasScope(required) {
					w.Header().Set("WWW-Authenticate", fmt.Sprintf(
						`Bearer realm="%s", error="insufficient_scope", scope="%s"`,
						EscapeQuotes(cfg.Realm),
						EscapeQuotes(strings.Join(cfg.RequiredScopes, " ")),
					))
					http.Error(w, "Insufficient scope", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), GrantContextKey{}, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildWWWAuthenticate builds a RFC 6750 / RFC 9728 compliant value for the
// WWW-Authenticate header. It always includes realm and, if set,
// resource_metadata. If includeError is true, it appends
// error="invalid_token" and an optional description.
func buildWWWAuthenticate(cfg MiddlewareConfig, includeError bool, errDescription string) string {
	var parts []string

	if cfg.Realm != "" {
		parts = append(parts, fmt.Sprintf(`realm="%s"`, EscapeQuotes(cfg.Realm)))
	}
	if cfg.ResourceMetadataURL != "" {
		parts = append(parts, fmt.Sprintf(
			`resource_metadata="%s"`, EscapeQuotes(cfg.ResourceMetadataURL)))
	}
	if includeError {
		parts = append(parts, `error="invalid_token"`)
		if errDescription != "" {
			parts = append(parts, fmt.Sprintf(
				`error_description="%s"`, EscapeQuotes(errDescription)))
		}
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// EscapeQuotes escapes quotes in a string for use in a quoted-string context.
func EscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
