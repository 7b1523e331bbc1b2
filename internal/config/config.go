package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store driver constants
const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Introspection cache backend constants
const (
	IntrospectionCacheOff    = "off"
	IntrospectionCacheMemory = "memory"
	IntrospectionCacheRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr   string // Authorization server listen address
	ResourceAddr string // Protected resource server listen address
	BaseURL      string // Issuer URL advertised in metadata and JWT iss claim
	ResourceURL  string // Protected resource URL (JWT aud claim)

	// JWT settings
	JWTSecret    string
	JWTAlgorithm string // Signing algorithm (HS256)

	// Token lifetimes
	TokenExpiration        time.Duration // Access token lifetime (opaque and JWT)
	RefreshTokenExpiration time.Duration
	AuthCodeExpiration     time.Duration // Authorization code lifetime

	// Seed client registered at startup
	ClientID           string
	ClientSecret       string
	ClientRedirectURIs []string // "*" accepts any redirect URI (testing only)

	// Scopes
	DefaultScopes         string   // Default for client_credentials when scope is omitted
	AuthorizeScopes       string   // Default for /oauth/authorize when scope is omitted
	SupportedScopes       []string // Advertised in AS metadata
	RequiredScopes        []string // Scopes the resource server requires on every call
	ResourceName          string   // Display name in the PRM document
	IntrospectionTimeout  time.Duration
	IntrospectionCache    string // "off", "memory", or "redis"
	IntrospectionCacheTTL time.Duration

	// Store
	StoreDriver string // "memory", "sqlite" or "postgres"
	DatabaseDSN string

	// Redis (rate limiting and introspection cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	EnableRateLimit string // "", "memory" or "redis"
	TokenRateLimit  int    // requests per minute on /oauth/token

	// Metrics
	MetricsEnabled bool
	MetricsToken   string // Optional bearer token protecting /metrics

	IsProduction bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":9000"),
		ResourceAddr: getEnv("RESOURCE_ADDR", ":8006"),
		BaseURL:      strings.TrimRight(getEnv("BASE_URL", "http://localhost:9000"), "/"),
		ResourceURL:  strings.TrimRight(getEnv("RESOURCE_URL", "http://localhost:8006"), "/"),

		JWTSecret:    getEnv("JWT_SECRET", "mcp-oauth2-test-secret-change-in-production"),
		JWTAlgorithm: getEnv("JWT_ALGORITHM", "HS256"),

		TokenExpiration:        getEnvDuration("TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),
		AuthCodeExpiration:     getEnvDuration("AUTH_CODE_EXPIRATION", 10*time.Minute),

		ClientID:           getEnv("OAUTH2_CLIENT_ID", "test-client-id"),
		ClientSecret:       getEnv("OAUTH2_CLIENT_SECRET", "test-client-secret"),
		ClientRedirectURIs: getEnvSlice("OAUTH2_REDIRECT_URIS", []string{"*"}),

		DefaultScopes:   getEnv("DEFAULT_SCOPES", "mcp:tools:read mcp:tools:write"),
		AuthorizeScopes: getEnv("AUTHORIZE_SCOPES", "read write"),
		SupportedScopes: getEnvSlice(
			"SUPPORTED_SCOPES",
			[]string{"mcp:tools:read", "mcp:tools:write", "mcp:tools:call"},
		),
		RequiredScopes:        getEnvSlice("REQUIRED_SCOPES", []string{"mcp:tools:read"}),
		ResourceName:          getEnv("RESOURCE_NAME", "MCP Resource Server"),
		IntrospectionTimeout:  getEnvDuration("INTROSPECTION_TIMEOUT", 5*time.Second),
		IntrospectionCache:    getEnv("INTROSPECTION_CACHE", IntrospectionCacheOff),
		IntrospectionCacheTTL: getEnvDuration("INTROSPECTION_CACHE_TTL", 30*time.Second),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverMemory),
		DatabaseDSN: getEnv("DATABASE_DSN", "oauth.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EnableRateLimit: getEnv("RATE_LIMIT_STORE", ""),
		TokenRateLimit:  getEnvInt("TOKEN_RATE_LIMIT", 60),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		IsProduction: getEnv("ENV", "development") == "production",
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.JWTAlgorithm != "HS256" && c.JWTAlgorithm != "HS384" && c.JWTAlgorithm != "HS512" {
		return fmt.Errorf("unsupported JWT_ALGORITHM: %s (must be HS256, HS384 or HS512)", c.JWTAlgorithm)
	}
	if c.TokenExpiration <= 0 {
		return errors.New("TOKEN_EXPIRATION must be positive")
	}
	if c.AuthCodeExpiration <= 0 {
		return errors.New("AUTH_CODE_EXPIRATION must be positive")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("OAUTH2_CLIENT_ID and OAUTH2_CLIENT_SECRET must not be empty")
	}
	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverSQLite, StoreDriverPostgres:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be: memory, sqlite, postgres)", c.StoreDriver)
	}
	if c.StoreDriver != StoreDriverMemory && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", c.StoreDriver)
	}
	switch c.IntrospectionCache {
	case IntrospectionCacheOff, IntrospectionCacheMemory, IntrospectionCacheRedis:
	default:
		return fmt.Errorf(
			"invalid INTROSPECTION_CACHE: %s (must be: off, memory, redis)",
			c.IntrospectionCache,
		)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
