package store

import (
	"context"
	"strings"

	"github.com/kmohamed-dz/abcher/internal/model"
)

// CreateSchool inserts a new school row. A join-code collision surfaces as
// ErrDuplicate; the caller decides whether to regenerate and retry.
func (s *Store) CreateSchool(ctx context.Context, school model.School) error {
	result := s.db.WithContext(ctx).Create(&school)
	return classify(result.Error)
}

// DeleteSchool removes a school. Used only as the compensating step when
// linking the creator's profile to a freshly created school fails.
func (s *Store) DeleteSchool(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.School{})
	return classify(result.Error)
}

// LookupSchoolIDByCode resolves a join code through the privileged database
// function, which runs with elevated rights because the caller has no school
// membership yet and ordinary row policies would hide every school. Returns
// ErrUnsupported when the function is not installed and ErrNotFound when the
// code matches nothing.
func (s *Store) LookupSchoolIDByCode(ctx context.Context, code string) (string, error) {
	var id *string
	result := s.db.WithContext(ctx).
		Raw("SELECT find_school_id_by_code(?)", code).
		Scan(&id)
	if result.Error != nil {
		return "", classify(result.Error)
	}
	if id == nil || strings.TrimSpace(*id) == "" {
		return "", ErrNotFound
	}
	return *id, nil
}

// GetSchoolByCode is the unprivileged fallback: a direct row read by join
// code. Exact match only, the code is stored uppercase.
func (s *Store) GetSchoolByCode(ctx context.Context, code string) (*model.School, error) {
	var school model.School
	result := s.db.WithContext(ctx).Where("join_code = ?", code).First(&school)
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return &school, nil
}
