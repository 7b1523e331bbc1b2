package store

import (
	"sync"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps all state in process memory behind a single mutex.
// This is the default backend: the authorization server is a test fixture and
// its state is expected to vanish on restart. The single-writer lock makes
// code redemption and token rotation trivially atomic.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*models.Client            // by client_id
	codes   map[string]*models.AuthorizationCode // by code hash
	tokens  map[string]*models.AccessToken       // by token ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*models.Client),
		codes:   make(map[string]*models.AuthorizationCode),
		tokens:  make(map[string]*models.AccessToken),
	}
}

func (m *MemoryStore) UpsertClient(client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *client
	m.clients[client.ClientID] = &c
	return nil
}

func (m *MemoryStore) GetClient(clientID string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	c := *client
	return &c, nil
}

func (m *MemoryStore) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *code
	m.codes[code.CodeHash] = &c
	return nil
}

func (m *MemoryStore) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.codes[codeHash]
	if !ok {
		return nil, ErrCodeNotFound
	}
	c := *code
	return &c, nil
}

func (m *MemoryStore) ConsumeAuthorizationCode(codeHash string) (*models.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.codes[codeHash]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if code.IsUsed() {
		return nil, ErrCodeAlreadyUsed
	}

	now := time.Now()
	code.UsedAt = &now

	c := *code
	return &c, nil
}

func (m *MemoryStore) CreateToken(token *models.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *token
	m.tokens[token.ID] = &t
	return nil
}

func (m *MemoryStore) GetTokenByHash(tokenHash string) (*models.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.TokenHash == tokenHash {
			t := *token
			return &t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *MemoryStore) GetTokenByJTI(jti string) (*models.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if jti == "" {
		return nil, ErrTokenNotFound
	}
	for _, token := range m.tokens {
		if token.JTI == jti {
			t := *token
			return &t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *MemoryStore) GetTokenByRefreshHash(refreshHash, clientID string) (*models.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if refreshHash == "" {
		return nil, ErrTokenNotFound
	}
	for _, token := range m.tokens {
		if token.RefreshTokenHash == refreshHash && token.ClientID == clientID {
			t := *token
			return &t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *MemoryStore) RotateToken(oldID string, replacement *models.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[oldID]; !ok {
		// A concurrent rotation already consumed the old record
		return ErrTokenNotFound
	}
	delete(m.tokens, oldID)

	t := *replacement
	m.tokens[replacement.ID] = &t
	return nil
}

func (m *MemoryStore) RevokeToken(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	token.Status = models.TokenStatusRevoked
	return nil
}

func (m *MemoryStore) CountActiveTokens() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, token := range m.tokens {
		if token.IsActive() {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Health() error { return nil }

func (m *MemoryStore) Close() error { return nil }
