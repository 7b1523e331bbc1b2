package store

import (
	"fmt"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/config"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
)

// Store is the persistence boundary for the authorization server. Grant logic
// depends only on this interface so the backing store can be swapped without
// touching the OAuth2 semantics.
//
// Implementations must make ConsumeAuthorizationCode and RotateToken atomic:
// two concurrent calls racing on the same code or token must result in exactly
// one success and one not-found/already-used error.
type Store interface {
	// UpsertClient registers a client, overwriting any existing registration
	// with the same client_id.
	UpsertClient(client *models.Client) error
	GetClient(clientID string) (*models.Client, error)

	CreateAuthorizationCode(code *models.AuthorizationCode) error
	GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error)
	// ConsumeAuthorizationCode marks the code as used and returns it. A code
	// can be consumed exactly once; the loser of a concurrent race receives
	// ErrCodeAlreadyUsed.
	ConsumeAuthorizationCode(codeHash string) (*models.AuthorizationCode, error)

	CreateToken(token *models.AccessToken) error
	GetTokenByHash(tokenHash string) (*models.AccessToken, error)
	GetTokenByJTI(jti string) (*models.AccessToken, error)
	// GetTokenByRefreshHash finds the record holding the given refresh token
	// hash for the given client. Tokens issued to other clients are invisible.
	GetTokenByRefreshHash(refreshHash, clientID string) (*models.AccessToken, error)
	// RotateToken atomically removes the record with oldID and inserts the
	// replacement, so the superseded access token cannot be replayed.
	RotateToken(oldID string, replacement *models.AccessToken) error
	RevokeToken(id string) error
	CountActiveTokens() (int64, error)

	Health() error
	Close() error
}

// New creates a Store for the configured driver.
func New(cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	case config.StoreDriverSQLite, config.StoreDriverPostgres:
		return NewDatabaseStore(cfg.StoreDriver, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}
