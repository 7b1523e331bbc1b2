package store

import (
	"sync"
	"testing"
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"
	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, clientID string) *models.Client {
	t.Helper()
	client := &models.Client{
		ClientID:     clientID,
		RedirectURIs: models.StringArray{"*"},
	}
	require.NoError(t, client.SetClientSecret("secret"))
	return client
}

func TestMemoryStoreClients(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetClient("missing")
	assert.ErrorIs(t, err, ErrClientNotFound)

	client := newTestClient(t, "client-a")
	require.NoError(t, s.UpsertClient(client))

	got, err := s.GetClient("client-a")
	require.NoError(t, err)
	assert.Equal(t, "client-a", got.ClientID)
	assert.True(t, got.ValidateClientSecret([]byte("secret")))

	// Upsert keeps the record unique per client_id
	client.RedirectURIs = models.StringArray{"http://localhost/callback"}
	require.NoError(t, s.UpsertClient(client))
	got, err = s.GetClient("client-a")
	require.NoError(t, err)
	assert.Equal(t, models.StringArray{"http://localhost/callback"}, got.RedirectURIs)
}

func TestMemoryStoreConsumeAuthorizationCode(t *testing.T) {
	s := NewMemoryStore()
	codeHash := util.SHA256Hex("raw-code")

	_, err := s.ConsumeAuthorizationCode(codeHash)
	assert.ErrorIs(t, err, ErrCodeNotFound)

	require.NoError(t, s.CreateAuthorizationCode(&models.AuthorizationCode{
		CodeHash:  codeHash,
		ClientID:  "client-a",
		Scopes:    "read write",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	code, err := s.ConsumeAuthorizationCode(codeHash)
	require.NoError(t, err)
	assert.Equal(t, "client-a", code.ClientID)
	assert.True(t, code.IsUsed())

	_, err = s.ConsumeAuthorizationCode(codeHash)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestMemoryStoreConsumeAuthorizationCodeRace(t *testing.T) {
	s := NewMemoryStore()
	codeHash := util.SHA256Hex("contested-code")
	require.NoError(t, s.CreateAuthorizationCode(&models.AuthorizationCode{
		CodeHash:  codeHash,
		ClientID:  "client-a",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeAuthorizationCode(codeHash); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one concurrent redemption may succeed")
}

func TestMemoryStoreTokenLookups(t *testing.T) {
	s := NewMemoryStore()

	tokenHash := util.SHA256Hex("access")
	refreshHash := util.SHA256Hex("refresh")
	token := &models.AccessToken{
		ID:               uuid.NewString(),
		TokenHash:        tokenHash,
		RefreshTokenHash: refreshHash,
		ClientID:         "client-a",
		Scopes:           "read",
		GrantType:        models.GrantAuthorizationCode,
		Status:           models.TokenStatusActive,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateToken(token))

	got, err := s.GetTokenByHash(tokenHash)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	got, err = s.GetTokenByRefreshHash(refreshHash, "client-a")
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	// A refresh token is only visible to the client it was issued to
	_, err = s.GetTokenByRefreshHash(refreshHash, "client-b")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = s.GetTokenByJTI("")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreRotateToken(t *testing.T) {
	s := NewMemoryStore()

	old := &models.AccessToken{
		ID:               uuid.NewString(),
		TokenHash:        util.SHA256Hex("old-access"),
		RefreshTokenHash: util.SHA256Hex("old-refresh"),
		ClientID:         "client-a",
		Status:           models.TokenStatusActive,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateToken(old))

	replacement := &models.AccessToken{
		ID:               uuid.NewString(),
		TokenHash:        util.SHA256Hex("new-access"),
		RefreshTokenHash: util.SHA256Hex("new-refresh"),
		ClientID:         "client-a",
		Status:           models.TokenStatusActive,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, s.RotateToken(old.ID, replacement))

	// Old record is gone, replacement is live
	_, err := s.GetTokenByHash(old.TokenHash)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	got, err := s.GetTokenByHash(replacement.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)

	// Rotating the same record again fails
	err = s.RotateToken(old.ID, &models.AccessToken{ID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreRevokeToken(t *testing.T) {
	s := NewMemoryStore()

	token := &models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex("access"),
		JTI:       uuid.NewString(),
		ClientID:  "client-a",
		Status:    models.TokenStatusActive,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateToken(token))

	require.NoError(t, s.RevokeToken(token.ID))

	got, err := s.GetTokenByJTI(token.JTI)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())
	assert.False(t, got.IsActive())

	assert.ErrorIs(t, s.RevokeToken("missing"), ErrTokenNotFound)
}

func TestMemoryStoreCountActiveTokens(t *testing.T) {
	s := NewMemoryStore()

	active := &models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex("a"),
		Status:    models.TokenStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	expired := &models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex("b"),
		Status:    models.TokenStatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	revoked := &models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex("c"),
		Status:    models.TokenStatusRevoked,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateToken(active))
	require.NoError(t, s.CreateToken(expired))
	require.NoError(t, s.CreateToken(revoked))

	count, err := s.CountActiveTokens()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
