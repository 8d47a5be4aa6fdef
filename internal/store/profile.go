package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/kmohamed-dz/abcher/internal/model"
)

// GetProfile fetches the profile keyed by the identity id.
func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var profile model.Profile
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&profile)
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &profile, nil
}

// EnsureProfile performs the conflict-safe bootstrap insert: create the row
// if absent, no-op if another device already created it. Keyed on the
// identity id so concurrent calls can never produce two rows.
func (s *Store) EnsureProfile(ctx context.Context, profile model.Profile) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&profile)
	return classify(result.Error)
}

// UpsertRole persists a role selection, creating the profile row if it does
// not exist yet. Safe to repeat with the same arguments.
func (s *Store) UpsertRole(ctx context.Context, id, fullName string, role model.Role) error {
	profile := model.Profile{ID: id, FullName: fullName, Role: &role}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "role", "updated_at"}),
		}).
		Create(&profile)
	return classify(result.Error)
}

// LinkSchool points the profile at a school and fixes its role. This is the
// final onboarding write; repeating it with the same arguments is a no-op.
func (s *Store) LinkSchool(ctx context.Context, id, schoolID string, role model.Role) error {
	result := s.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"school_id": schoolID,
			"role":      role,
		})
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
