package refreshtoken

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"identity-api/config"
	"identity-api/services/logging"
	"identity-api/services/users"
)

var (
	ErrMissingToken    = errors.New("refresh token missing")
	ErrOriginRejected  = errors.New("request origin not allowed")
	ErrTokenInvalid    = errors.New("invalid or expired refresh token")
	ErrUserNotEligible = errors.New("user not eligible for token refresh")
)

// AccessTokenIssuer mints the short-lived access token handed back alongside
// the rotated refresh token.
type AccessTokenIssuer interface {
	Issue(userID uint, email, name string, roles []string) (string, error)
}

// UserDirectory resolves the owning user of a refresh token.
type UserDirectory interface {
	GetByID(db *gorm.DB, id uint) (*users.User, error)
}

// Rotator drives the refresh token state machine: Active -> Retired on
// rotation or logout, Active -> Expired by time, with retired and expired
// rows eventually purged by the sweeper.
type Rotator struct {
	store  *Store
	users  UserDirectory
	issuer AccessTokenIssuer
	config *config.Config
	logger *logging.Service
}

func NewRotator(store *Store, directory UserDirectory, issuer AccessTokenIssuer, cfg *config.Config, logger *logging.Service) *Rotator {
	return &Rotator{
		store:  store,
		users:  directory,
		issuer: issuer,
		config: cfg,
		logger: logger,
	}
}

type RotationResult struct {
	AccessToken  string
	RefreshToken *RefreshToken
}

// Rotate validates the presented token and its request origin, then retires
// the old row and creates the replacement inside one transaction. Concurrent
// rotations of the same token string produce exactly one success; every
// other attempt fails with ErrTokenInvalid.
func (r *Rotator) Rotate(db *gorm.DB, presented, origin, deviceInfo string) (*RotationResult, error) {
	if presented == "" {
		return nil, ErrMissingToken
	}

	if !r.originAllowed(origin) {
		r.logger.Warn("refresh rejected: origin not in allow-list", zap.String("origin", origin))
		return nil, ErrOriginRejected
	}

	// The lookup runs on the store's own connection, not the wrapping
	// request transaction: only retire+create need that transaction, and a
	// lookup inside it would hold a read lock the eager delete below (also
	// on the store's own connection) could not get past. Retire's
	// rows-affected guard keeps the race safe regardless of where the read
	// happened.
	token, err := r.store.Find(nil, presented)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if !token.IsValid() {
		// A presented-but-invalid row is evidence of expiry or replay.
		// Removing it immediately narrows the replay window instead of
		// leaving it for the sweeper. The delete runs on the store's own
		// connection so it survives the rollback of the request
		// transaction that the 401 below will trigger.
		if delErr := r.store.Delete(nil, token.Token); delErr != nil {
			r.logger.Error("failed to delete invalid refresh token", zap.Error(delErr))
		}
		r.logger.Warn("refresh rejected: token inactive or expired",
			zap.Uint("user_id", token.UserID),
			zap.Bool("active", token.IsActive),
			zap.Bool("expired", token.IsExpired()))
		return nil, ErrTokenInvalid
	}

	user, err := r.users.GetByID(db, token.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrUserNotEligible
		}
		return nil, err
	}

	replacement, err := r.exchange(db, token, user.ID, deviceInfo)
	if err != nil {
		return nil, err
	}

	accessToken, err := r.issuer.Issue(user.ID, user.Email, user.FullName, user.RoleNames())
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	r.logger.Info("refresh token rotated", zap.Uint("user_id", user.ID))

	return &RotationResult{
		AccessToken:  accessToken,
		RefreshToken: replacement,
	}, nil
}

// exchange retires the old token and creates its replacement atomically. No
// reader may observe a state where only half the pair is applied.
func (r *Rotator) exchange(db *gorm.DB, old *RefreshToken, userID uint, deviceInfo string) (*RefreshToken, error) {
	conn := db
	if conn == nil {
		conn = r.store.db
	}

	var replacement *RefreshToken
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := r.store.Retire(tx, old.Token); err != nil {
			if errors.Is(err, ErrTokenAlreadyRetired) {
				// Lost the race against a concurrent rotation.
				return ErrTokenInvalid
			}
			return err
		}

		created, err := r.store.Create(tx, userID, deviceInfo)
		if err != nil {
			return err
		}
		replacement = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return replacement, nil
}

// Revoke retires the presented token on logout. Unknown or already-retired
// tokens are not an error; logout is idempotent.
func (r *Rotator) Revoke(db *gorm.DB, presented string) error {
	if presented == "" {
		return nil
	}

	err := r.store.Retire(db, presented)
	if err != nil && !errors.Is(err, ErrTokenAlreadyRetired) {
		return err
	}

	return nil
}

func (r *Rotator) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range r.config.RefreshToken.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
