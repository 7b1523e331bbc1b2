package store

import (
	"time"

	"github.com/CRACK-BREAK-MAKE/mcp-grimoire/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Compile-time interface check.
var _ Store = (*DatabaseStore)(nil)

// DatabaseStore backs the Store interface with a SQL database via GORM.
// Use this backend when issued tokens must survive a restart; atomicity of
// code redemption and token rotation comes from guarded UPDATE/DELETE
// statements rather than a process-wide lock.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore opens the database and migrates the schema.
func NewDatabaseStore(driver, dsn string) (*DatabaseStore, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Client{},
		&models.AuthorizationCode{},
		&models.AccessToken{},
	); err != nil {
		return nil, err
	}

	return &DatabaseStore{db: db}, nil
}

func (s *DatabaseStore) UpsertClient(client *models.Client) error {
	var existing models.Client
	err := s.db.Where("client_id = ?", client.ClientID).First(&existing).Error
	switch {
	case err == nil:
		client.ID = existing.ID
		return s.db.Save(client).Error
	case err == gorm.ErrRecordNotFound:
		return s.db.Create(client).Error
	default:
		return err
	}
}

func (s *DatabaseStore) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, ErrClientNotFound
	}
	return &client, nil
}

func (s *DatabaseStore) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

func (s *DatabaseStore) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		return nil, ErrCodeNotFound
	}
	return &code, nil
}

func (s *DatabaseStore) ConsumeAuthorizationCode(codeHash string) (*models.AuthorizationCode, error) {
	// The WHERE used_at IS NULL guard ensures only one concurrent request
	// wins; the loser sees zero rows affected.
	now := time.Now()
	result := s.db.Model(&models.AuthorizationCode{}).
		Where("code_hash = ? AND used_at IS NULL", codeHash).
		Update("used_at", now)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var code models.AuthorizationCode
		if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
			return nil, ErrCodeNotFound
		}
		return nil, ErrCodeAlreadyUsed
	}

	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		return nil, ErrCodeNotFound
	}
	return &code, nil
}

func (s *DatabaseStore) CreateToken(token *models.AccessToken) error {
	return s.db.Create(token).Error
}

func (s *DatabaseStore) GetTokenByHash(tokenHash string) (*models.AccessToken, error) {
	var token models.AccessToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *DatabaseStore) GetTokenByJTI(jti string) (*models.AccessToken, error) {
	if jti == "" {
		return nil, ErrTokenNotFound
	}
	var token models.AccessToken
	if err := s.db.Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *DatabaseStore) GetTokenByRefreshHash(refreshHash, clientID string) (*models.AccessToken, error) {
	if refreshHash == "" {
		return nil, ErrTokenNotFound
	}
	var token models.AccessToken
	err := s.db.
		Where("refresh_token_hash = ? AND client_id = ?", refreshHash, clientID).
		First(&token).Error
	if err != nil {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *DatabaseStore) RotateToken(oldID string, replacement *models.AccessToken) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", oldID).Delete(&models.AccessToken{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// A concurrent rotation already consumed the old record
			return ErrTokenNotFound
		}
		return tx.Create(replacement).Error
	})
}

func (s *DatabaseStore) RevokeToken(id string) error {
	result := s.db.Model(&models.AccessToken{}).
		Where("id = ?", id).
		Update("status", models.TokenStatusRevoked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *DatabaseStore) CountActiveTokens() (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessToken{}).
		Where("status = ? AND expires_at > ?", models.TokenStatusActive, time.Now()).
		Count(&count).Error
	return count, err
}

func (s *DatabaseStore) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
