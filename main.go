package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/handlers"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/metrics"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/middleware"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/resource"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/services"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/token"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/version"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "server":
		runServer()
	case "resource":
		runResource()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("OAuth 2.0 authorization server and protected MCP resource server")
	fmt.Println("\nCommands:")
	fmt.Println("  server      Start the OAuth authorization server")
	fmt.Println("  resource    Start the protected MCP resource server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}

func runServer() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	prometheusMetrics := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}

	codec, err := token.NewCodec(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize token codec: %v", err)
	}

	clientService := services.NewClientService(db, cfg)
	if err := clientService.Seed(); err != nil {
		log.Fatalf("Failed to seed client: %v", err)
	}
	authorizationService := services.NewAuthorizationService(db, cfg, clientService, prometheusMetrics)
	tokenService := services.NewTokenService(db, cfg, clientService, codec, prometheusMetrics)

	authorizeHandler := handlers.NewAuthorizeHandler(authorizationService, cfg)
	tokenHandler := handlers.NewTokenHandler(tokenService, authorizationService, clientService, cfg)
	introspectHandler := handlers.NewIntrospectHandler(tokenService)
	discoveryHandler := handlers.NewDiscoveryHandler(cfg, db)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(prometheusMetrics))
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", discoveryHandler.Health)
	r.GET("/.well-known/oauth-authorization-server", discoveryHandler.Metadata)

	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	tokenRateLimiter := setupTokenRateLimiter(cfg)

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", authorizeHandler.Authorize)
		oauth.POST("/token", tokenRateLimiter, tokenHandler.Token)
		oauth.POST("/validate", introspectHandler.Introspect)
		oauth.POST("/revoke", tokenHandler.Revoke)
	}

	log.Printf("Authorization server starting on %s", cfg.ServerAddr)
	log.Printf("Issuer: %s", cfg.BaseURL)
	log.Printf("Metadata: %s/.well-known/oauth-authorization-server", cfg.BaseURL)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	runGraceful(srv, func() error {
		log.Println("Closing store...")
		return db.Close()
	})
}

func runResource() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	rs, err := resource.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize resource server: %v", err)
	}

	log.Printf("Resource server starting on %s", cfg.ResourceAddr)
	log.Printf("MCP endpoint: %s/mcp", cfg.ResourceURL)
	log.Printf("Resource metadata: %s/.well-known/oauth-protected-resource", cfg.ResourceURL)
	log.Printf("Authorization server: %s", cfg.BaseURL)

	srv := &http.Server{
		Addr:              cfg.ResourceAddr,
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	runGraceful(srv, nil)
}

// runGraceful serves srv under the graceful manager and blocks until
// shutdown completes. cleanup, if non-nil, runs after the server stops.
func runGraceful(srv *http.Server, cleanup func() error) {
	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})

	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})

	if cleanup != nil {
		m.AddShutdownJob(cleanup)
	}

	<-m.Done()
}

// setupTokenRateLimiter builds the rate limiter for /oauth/token, or a
// no-op middleware when rate limiting is disabled.
func setupTokenRateLimiter(cfg *config.Config) gin.HandlerFunc {
	if cfg.EnableRateLimit == "" {
		return func(c *gin.Context) { c.Next() }
	}

	log.Printf("Rate limiting enabled (store: %s, %d req/min)", cfg.EnableRateLimit, cfg.TokenRateLimit)
	limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.TokenRateLimit,
		StoreType:         middleware.RateLimitStoreType(cfg.EnableRateLimit),
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}
	return limiter
}
