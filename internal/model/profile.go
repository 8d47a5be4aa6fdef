package model

import (
	"time"

	"gorm.io/gorm"
)

// Profile represents the tenant-membership record stored in the database.
// It is keyed 1:1 to an identity issued by the external auth provider and
// stays "pending" until both Role and SchoolID are set.
type Profile struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	FullName  string         `json:"full_name" gorm:"type:varchar(255)"`
	Role      *Role          `json:"role,omitempty" gorm:"type:varchar(50);index"`
	SchoolID  *string        `json:"school_id,omitempty" gorm:"type:uuid;index"`
	Phone     *string        `json:"phone,omitempty" gorm:"type:varchar(50)"`
	AvatarURL *string        `json:"avatar_url,omitempty" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Onboarded reports whether the profile has completed onboarding.
func (p *Profile) Onboarded() bool {
	return p != nil && p.Role != nil && p.SchoolID != nil
}
