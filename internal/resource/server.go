// Package resource assembles the protected MCP resource server. The MCP
// endpoint sits behind the bearer token verifier; discovery and health
// endpoints stay open.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/verifier"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/version"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the resource server: an MCP server over streamable HTTP plus
// the RFC 9728 discovery document.
type Server struct {
	cfg      *config.Config
	verifier *verifier.Verifier
	handler  http.Handler
}

// New builds the resource server and wires the token verifier in front of
// the MCP endpoint.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	v, err := verifier.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		verifier: v,
	}

	mcpServer := server.NewMCPServer(
		cfg.ResourceName,
		version.String(),
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTool(
		mcp.NewTool("ping", mcp.WithDescription("Health check tool, returns pong")),
		s.handlePing,
	)
	mcpServer.AddTool(
		mcp.NewTool("whoami", mcp.WithDescription("Returns the identity behind the bearer token")),
		s.handleWhoami,
	)

	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/mcp"),
	)

	protected := verifier.Middleware(verifier.MiddlewareConfig{
		Verifier:            v,
		Realm:               cfg.BaseURL,
		ResourceMetadataURL: cfg.ResourceURL + "/.well-known/oauth-protected-resource",
		RequiredScopes:      cfg.RequiredScopes,
	})

	metadataHandler := verifier.NewMetadataHandler(
		cfg.ResourceURL,
		cfg.ResourceName,
		cfg.BaseURL,
		cfg.SupportedScopes,
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", protected(streamable))
	// Clients may request the document with or without the resource path
	// suffix (RFC 9728 §3.1), so the subtree is registered too.
	mux.Handle("/.well-known/oauth-protected-resource", metadataHandler)
	mux.Handle("/.well-known/oauth-protected-resource/", metadataHandler)
	mux.HandleFunc("/health", s.handleHealth)
	s.handler = mux

	return s, nil
}

// Handler returns the HTTP handler for the resource server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handlePing(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("pong"), nil
}

func (s *Server) handleWhoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	grant, ok := verifier.GrantFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("no verified identity on this session"), nil
	}

	identity := map[string]any{
		"client_id": grant.ClientID,
		"sub":       grant.Subject,
		"scopes":    strings.Join(grant.Scopes, " "),
	}
	if !grant.ExpiresAt.IsZero() {
		identity["expires_at"] = grant.ExpiresAt.Format(time.RFC3339)
	}

	encoded, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity: %w", err)
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": version.App,
	})
}
