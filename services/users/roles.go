package users

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRoleExists   = errors.New("role already exists")
	ErrRoleNotFound = errors.New("role not found")
)

func (s *Service) CreateRole(db *gorm.DB, name string) (*Role, error) {
	if db == nil {
		db = s.db
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	var existing int64
	if err := db.Model(&Role{}).Where("name = ?", name).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, ErrRoleExists
	}

	role := Role{Name: name}
	if err := db.Create(&role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.logger.Info("role created", zap.String("role", role.Name))

	return &role, nil
}

// ListRoles returns every role with the number of assigned users.
func (s *Service) ListRoles() ([]RoleSummary, error) {
	var roles []Role
	if err := s.db.Order("name").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		var count int64
		err := s.db.Table("user_roles").Where("role_id = ?", role.ID).Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		summaries = append(summaries, RoleSummary{
			ID:         role.ID,
			Name:       role.Name,
			TotalUsers: count,
		})
	}

	return summaries, nil
}

func (s *Service) DeleteRole(db *gorm.DB, id uint) error {
	if db == nil {
		db = s.db
	}

	var role Role
	if err := db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	if err := db.Exec("DELETE FROM user_roles WHERE role_id = ?", role.ID).Error; err != nil {
		return fmt.Errorf("failed to detach role: %w", err)
	}

	if err := db.Delete(&role).Error; err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	s.logger.Info("role deleted", zap.String("role", role.Name))

	return nil
}
