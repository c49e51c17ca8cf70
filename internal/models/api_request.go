package models

import (
	"time"

	"gorm.io/gorm"
)

// APIRequest is one admitted API-key request. The log is append only and doubles as
// the source of truth for the sliding rate-limit window.
type APIRequest struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	APIKeyID   string    `gorm:"not null;index:idx_api_requests_key_created,priority:1;size:36" json:"api_key_id"`
	Endpoint   string    `gorm:"not null" json:"endpoint"`
	Method     string    `gorm:"not null;size:16" json:"method"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `gorm:"size:64" json:"ip_address"`
	CreatedAt  time.Time `gorm:"index:idx_api_requests_key_created,priority:2;index" json:"created_at"`
}

func (APIRequest) TableName() string {
	return "api_requests"
}

func (r *APIRequest) BeforeCreate(*gorm.DB) error {
	return assignID(&r.ID)
}
