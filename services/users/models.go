package users

import (
	"time"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FullName     string    `json:"fullName" gorm:"size:255;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	Roles        []Role    `json:"roles" gorm:"many2many:user_roles;"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// RoleNames flattens the association for token claims.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}

type Role struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Role) TableName() string {
	return "roles"
}

type RoleSummary struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	TotalUsers int64  `json:"totalUsers"`
}

type PagedUsers struct {
	Items      []User `json:"items"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	TotalCount int64  `json:"totalCount"`
	TotalPages int    `json:"totalPages"`
}
