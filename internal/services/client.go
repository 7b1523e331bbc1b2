package services

import (
	"fmt"
	"log"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/store"
)

// ClientService manages the registered OAuth clients. Clients are seeded
// from configuration at startup rather than registered dynamically.
type ClientService struct {
	store  store.Store
	config *config.Config
}

func NewClientService(s store.Store, cfg *config.Config) *ClientService {
	return &ClientService{store: s, config: cfg}
}

// Seed registers the configured client, replacing any previous secret.
// The plaintext secret is never stored; only its bcrypt hash is persisted.
func (s *ClientService) Seed() error {
	client := &models.Client{
		ClientID:     s.config.ClientID,
		RedirectURIs: models.StringArray(s.config.ClientRedirectURIs),
	}
	if err := client.SetClientSecret(s.config.ClientSecret); err != nil {
		return fmt.Errorf("failed to hash client secret: %w", err)
	}

	if err := s.store.UpsertClient(client); err != nil {
		return fmt.Errorf("failed to seed client: %w", err)
	}

	log.Printf("[Client] Seeded client_id=%s redirect_uris=%v", client.ClientID, client.RedirectURIs)
	return nil
}

// Authenticate verifies a client_id and secret pair against the store.
// Lookup failure and secret mismatch are indistinguishable to the caller.
func (s *ClientService) Authenticate(clientID, clientSecret string) (*models.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrInvalidClientCredentials
	}

	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrInvalidClientCredentials
	}
	if !client.ValidateClientSecret([]byte(clientSecret)) {
		return nil, ErrInvalidClientCredentials
	}
	return client, nil
}

// AuthenticateForExchange verifies a client redeeming an authorization
// code. Public PKCE clients present no secret at all; when a secret is
// provided it must match.
func (s *ClientService) AuthenticateForExchange(clientID, clientSecret string) (*models.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClientCredentials
	}

	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrInvalidClientCredentials
	}
	if clientSecret != "" && !client.ValidateClientSecret([]byte(clientSecret)) {
		return nil, ErrInvalidClientCredentials
	}
	return client, nil
}

// Lookup fetches a client without authenticating it. Used by the
// authorization endpoint, where no secret is presented.
func (s *ClientService) Lookup(clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrUnauthorizedClient
	}
	return client, nil
}
