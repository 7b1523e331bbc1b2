// Package verifier implements bearer token verification for the resource
// server. Tokens are checked against the authorization server's introspection
// endpoint; the result can be cached briefly to keep hot paths cheap.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/cache"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/retry"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/util"

	httpclient "github.com/appleboy/go-httpclient"
)

// AccessGrant is the verified identity behind a bearer token.
type AccessGrant struct {
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"sub"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasScope reports whether the grant carries the given scope.
func (g *AccessGrant) HasScope(scope string) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// introspectionResponse mirrors the RFC 7662 response body.
type introspectionResponse struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope"`
	ClientID string `json:"client_id"`
	Exp      int64  `json:"exp"`
	Sub      string `json:"sub"`
}

// Verifier validates bearer tokens by calling the authorization server's
// introspection endpoint. All failure modes (network error, timeout,
// non-200, active:false) collapse to rejection.
type Verifier struct {
	introspectURL string
	timeout       time.Duration
	client        *retry.Client
	cache         cache.Cache[introspectionResponse]
	cacheTTL      time.Duration
}

// New builds a Verifier from the configuration. The introspection cache is
// optional; with IntrospectionCache=off every request hits the endpoint.
func New(ctx context.Context, cfg *config.Config) (*Verifier, error) {
	base, err := httpclient.NewAuthClient(
		httpclient.AuthModeNone,
		"",
		httpclient.WithTimeout(cfg.IntrospectionTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	v := &Verifier{
		introspectURL: cfg.BaseURL + "/oauth/validate",
		timeout:       cfg.IntrospectionTimeout,
		client:        retry.NewClient(retry.WithHTTPClient(base)),
		cacheTTL:      cfg.IntrospectionCacheTTL,
	}

	switch cfg.IntrospectionCache {
	case config.IntrospectionCacheMemory:
		v.cache = cache.NewMemoryCache[introspectionResponse]()
	case config.IntrospectionCacheRedis:
		redisCache, err := cache.NewRueidisCache[introspectionResponse](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"introspect:",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create introspection cache: %w", err)
		}
		v.cache = redisCache
	}

	return v, nil
}

// Verify introspects a bearer token. It returns the grant for an active
// token and nil for anything else; the caller cannot distinguish why a
// token was rejected.
func (v *Verifier) Verify(ctx context.Context, rawToken string) *AccessGrant {
	if rawToken == "" {
		return nil
	}

	result, err := v.introspect(ctx, rawToken)
	if err != nil {
		log.Printf("[Verifier] Introspection failed: %v", err)
		return nil
	}
	if !result.Active {
		return nil
	}

	grant := &AccessGrant{
		ClientID: result.ClientID,
		Subject:  result.Sub,
		Scopes:   strings.Fields(result.Scope),
	}
	if result.Exp > 0 {
		grant.ExpiresAt = time.Unix(result.Exp, 0)
	}
	return grant
}

func (v *Verifier) introspect(ctx context.Context, rawToken string) (introspectionResponse, error) {
	if v.cache == nil {
		return v.fetch(ctx, rawToken)
	}

	// Cache key is the token hash; raw tokens never touch the cache backend
	key := util.SHA256Hex(rawToken)
	if cached, err := v.cache.Get(ctx, key); err == nil {
		return cached, nil
	}

	result, err := v.fetch(ctx, rawToken)
	if err != nil || !result.Active {
		// Only active results are cached; a rejection is re-checked on
		// every request so revocations and recoveries take effect at once.
		return result, err
	}

	// A cache entry must never outlive the token itself.
	ttl := v.cacheTTL
	if result.Exp > 0 {
		if remaining := time.Until(time.Unix(result.Exp, 0)); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := v.cache.Set(ctx, key, result, ttl); err != nil {
			log.Printf("[Verifier] Failed to cache introspection result: %v", err)
		}
	}
	return result, nil
}

func (v *Verifier) fetch(ctx context.Context, rawToken string) (introspectionResponse, error) {
	var result introspectionResponse

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.introspectURL, nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Authorization", "Bearer "+rawToken)

	resp, err := v.client.Do(ctx, req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	// The endpoint answers 401 with active:false for dead tokens; both
	// status codes carry a parseable body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
		return result, fmt.Errorf("introspection returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("failed to decode introspection response: %w", err)
	}
	return result, nil
}
