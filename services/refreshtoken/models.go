package refreshtoken

import (
	"time"
)

// RefreshToken is one grant of extended-session capability. Rows are
// soft-retired (is_active flipped to false) on rotation or logout and only
// physically removed by the sweeper, so replayed tokens can still be told
// apart from tokens that never existed.
type RefreshToken struct {
	Token      string    `json:"-" gorm:"primaryKey;size:128"`
	UserID     uint      `json:"userId" gorm:"not null;index"`
	ExpiryDate time.Time `json:"expiryDate" gorm:"not null;index"`
	IsActive   bool      `json:"isActive" gorm:"not null"`
	DeviceInfo string    `json:"deviceInfo" gorm:"size:255"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// IsExpired is computed from the clock on every call; it is never cached on
// the instance.
func (t *RefreshToken) IsExpired() bool {
	return !time.Now().UTC().Before(t.ExpiryDate)
}

func (t *RefreshToken) IsValid() bool {
	return t.IsActive && !t.IsExpired()
}
