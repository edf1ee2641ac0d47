package users

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"identity-api/config"
	"identity-api/services/logging"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
	ErrEmailTaken            = errors.New("email address is already registered")
	ErrPasswordHashingFailed = errors.New("failed to hash password")
	ErrPasswordTooShort      = errors.New("password too short")
)

const DefaultRole = "user"

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// VerifyCredentials is the credential check in front of token issuance.
// It deliberately returns the same error for unknown email and wrong
// password.
func (s *Service) VerifyCredentials(email, password string) (*User, error) {
	var user User
	err := s.db.Preload("Roles").Where("email = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("login attempt for unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login attempt with wrong password", zap.Uint("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// GetByID resolves the owning user during refresh token rotation. Roles are
// preloaded so freshly issued access tokens reflect current assignments.
func (s *Service) GetByID(db *gorm.DB, id uint) (*User, error) {
	if db == nil {
		db = s.db
	}

	var user User
	err := db.Preload("Roles").First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

func (s *Service) Create(db *gorm.DB, email, fullName, password string, roleNames []string) (*User, error) {
	if db == nil {
		db = s.db
	}

	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))

	var existing int64
	if err := db.Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return nil, ErrPasswordHashingFailed
	}

	if len(roleNames) == 0 {
		roleNames = []string{DefaultRole}
	}

	roles, err := s.resolveRoles(db, roleNames)
	if err != nil {
		return nil, err
	}

	user := User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Roles:        roles,
	}

	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.Uint("user_id", user.ID),
		zap.Strings("roles", user.RoleNames()))

	return &user, nil
}

// ListUsers returns one page ordered by email, mirroring the admin dashboard
// listing.
func (s *Service) ListUsers(pageNumber, pageSize int) (*PagedUsers, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var total int64
	if err := s.db.Model(&User{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	var items []User
	err := s.db.Preload("Roles").
		Order("email").
		Offset((pageNumber - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &PagedUsers{
		Items:      items,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.config.Auth.MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooShort, s.config.Auth.MinPasswordLength)
	}
	return nil
}

func (s *Service) resolveRoles(db *gorm.DB, names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, err := s.ensureRole(db, strings.ToLower(name))
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

func (s *Service) ensureRole(db *gorm.DB, name string) (*Role, error) {
	var role Role
	err := db.Where("name = ?", name).First(&role).Error
	if err == nil {
		return &role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	role = Role{Name: name}
	if err := db.Create(&role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return &role, nil
}
