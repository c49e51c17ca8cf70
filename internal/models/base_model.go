package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides the identifier and timestamps shared by api_keys rows.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identifier when none was set.
func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	return assignID(&m.ID)
}

// assignID fills id with a UUIDv7, whose leading timestamp keeps inserts ordered in
// the primary key index of the append-only request log.
func assignID(id *string) error {
	if *id != "" {
		return nil
	}
	generated, err := uuid.NewV7()
	if err != nil {
		return err
	}
	*id = generated.String()
	return nil
}
