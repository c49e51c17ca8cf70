package models

import "time"

// APIKey is a long-lived credential issued to a user. Only the sha256 digest of the
// secret is stored; records are deactivated rather than deleted.
type APIKey struct {
	BaseModel

	UserID     string     `gorm:"not null;index;size:64" json:"user_id"`
	Name       string     `gorm:"not null;size:255" json:"name"`
	KeyHash    string     `gorm:"not null;uniqueIndex;size:64" json:"-"`
	KeyPrefix  string     `gorm:"size:16" json:"key_prefix"`
	RateLimit  int        `gorm:"not null;default:100" json:"rate_limit"`
	IsActive   bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
