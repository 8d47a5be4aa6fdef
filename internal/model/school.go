package model

import (
	"time"

	"gorm.io/gorm"
)

// School represents the tenant model stored in the database.
// This is the isolation boundary of our multi-tenant architecture: every
// school-scoped row carries a SchoolID and row policies filter on it.
type School struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Region    string         `json:"region" gorm:"type:varchar(100)"`
	Address   *string        `json:"address,omitempty" gorm:"type:text"`
	LogoURL   *string        `json:"logo_url,omitempty" gorm:"type:text"`
	JoinCode  string         `json:"join_code" gorm:"type:varchar(12);uniqueIndex;not null"` // stored uppercase
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
