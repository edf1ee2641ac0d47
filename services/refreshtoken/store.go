package refreshtoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"identity-api/config"
	"identity-api/services/logging"
)

var (
	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenAlreadyRetired   = errors.New("refresh token already retired")
	ErrTokenGenerationFailed = errors.New("failed to generate secure token")
)

// create retries cover the negligible-but-specified case of a token string
// collision on the primary key.
const createRetries = 3

// Store persists refresh tokens. Methods take the request-scoped *gorm.DB so
// writes join the transaction opened by the transaction middleware; passing
// nil falls back to the store's own connection.
type Store struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewStore(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Store {
	return &Store{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

func (s *Store) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}

// Create generates and persists a new active token for userID with the
// configured TTL.
func (s *Store) Create(db *gorm.DB, userID uint, deviceInfo string) (*RefreshToken, error) {
	conn := s.handle(db)

	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		tokenString, err := s.generateToken()
		if err != nil {
			s.logger.Error("refresh token generation failed", zap.Error(err))
			return nil, ErrTokenGenerationFailed
		}

		token := RefreshToken{
			Token:      tokenString,
			UserID:     userID,
			ExpiryDate: time.Now().UTC().Add(s.config.RefreshToken.Expiry),
			IsActive:   true,
			DeviceInfo: deviceInfo,
		}

		if err := conn.Create(&token).Error; err != nil {
			if isDuplicateKey(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}

		s.logger.Debug("refresh token created",
			zap.Uint("user_id", userID),
			zap.Time("expiry_date", token.ExpiryDate))

		return &token, nil
	}

	return nil, fmt.Errorf("failed to store refresh token after %d attempts: %w", createRetries, lastErr)
}

// Find returns the row for the given token string whether or not it is still
// valid; callers check IsValid themselves.
func (s *Store) Find(db *gorm.DB, tokenString string) (*RefreshToken, error) {
	var token RefreshToken
	err := s.handle(db).Where("token = ?", tokenString).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &token, nil
}

// Retire flips is_active to false exactly once. The is_active guard in the
// WHERE clause makes concurrent rotations of the same token resolve to a
// single winner: the loser sees zero affected rows.
func (s *Store) Retire(db *gorm.DB, tokenString string) error {
	result := s.handle(db).Model(&RefreshToken{}).
		Where("token = ? AND is_active = ?", tokenString, true).
		Update("is_active", false)

	if result.Error != nil {
		return fmt.Errorf("failed to retire refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenAlreadyRetired
	}

	return nil
}

// Delete removes a row immediately. Used for eager cleanup when an invalid
// or replayed token is presented, which narrows the replay window instead of
// waiting for the sweeper.
func (s *Store) Delete(db *gorm.DB, tokenString string) error {
	result := s.handle(db).Where("token = ?", tokenString).Delete(&RefreshToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete refresh token: %w", result.Error)
	}
	return nil
}

// CountPurgeable reports how many rows are expired or inactive.
func (s *Store) CountPurgeable() (int64, error) {
	var count int64
	err := s.db.Model(&RefreshToken{}).
		Where("expiry_date < ? OR is_active = ?", time.Now().UTC(), false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

// PurgeExpiredOrInactive deletes every expired or inactive row and returns
// the number removed.
func (s *Store) PurgeExpiredOrInactive(db *gorm.DB) (int64, error) {
	result := s.handle(db).
		Where("expiry_date < ? OR is_active = ?", time.Now().UTC(), false).
		Delete(&RefreshToken{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("purged refresh tokens", zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}

func (s *Store) generateToken() (string, error) {
	buf := make([]byte, s.config.RefreshToken.TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
