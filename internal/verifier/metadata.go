package verifier

import (
	"encoding/json"
	"log"
	"net/http"
)

// ProtectedResourceMetadata is the OAuth Protected Resource metadata
// document defined in RFC 9728.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	ResourceName           string   `json:"resource_name,omitempty"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// NewMetadataHandler serves the RFC 9728 metadata document at
// /.well-known/oauth-protected-resource. CORS is wide open: this is a
// discovery endpoint and browser-based MCP clients need to read it.
func NewMetadataHandler(resourceURL, resourceName, issuer string, scopes []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "mcp-protocol-version, Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		metadata := ProtectedResourceMetadata{
			Resource:               resourceURL,
			ResourceName:           resourceName,
			AuthorizationServers:   []string{issuer},
			BearerMethodsSupported: []string{"header"},
			ScopesSupported:        scopes,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metadata); err != nil {
			log.Printf("[Verifier] Failed to encode resource metadata: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
