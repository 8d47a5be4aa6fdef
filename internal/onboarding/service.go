package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/store"
)

// ErrCodeNotFound means the submitted join code resolves to no school. This
// is user-correctable input, not a fault.
var ErrCodeNotFound = errors.New("school code not found")

// maxCodeAttempts bounds join-code regeneration when the store reports a
// uniqueness collision on insert.
const maxCodeAttempts = 5

// ProfileStore is the slice of the data store the provisioning flow writes
// profiles through.
type ProfileStore interface {
	UpsertRole(ctx context.Context, id, fullName string, role model.Role) error
	LinkSchool(ctx context.Context, id, schoolID string, role model.Role) error
}

// SchoolStore is the slice of the data store that owns school rows and the
// join-code lookups.
type SchoolStore interface {
	CreateSchool(ctx context.Context, school model.School) error
	DeleteSchool(ctx context.Context, id string) error
	LookupSchoolIDByCode(ctx context.Context, code string) (string, error)
	GetSchoolByCode(ctx context.Context, code string) (*model.School, error)
}

// Service drives tenant provisioning: creating a new school as its admin,
// or joining an existing one through a shared code.
type Service struct {
	profiles ProfileStore
	schools  SchoolStore
	log      *zap.Logger
}

// NewService creates a provisioning service over injected stores.
func NewService(profiles ProfileStore, schools SchoolStore, log *zap.Logger) *Service {
	return &Service{profiles: profiles, schools: schools, log: log}
}

// SelectRole persists the caller's role choice immediately, so a reload
// resumes at the branch the choice implies instead of re-asking.
func (s *Service) SelectRole(ctx context.Context, profile *model.Profile, role model.Role) error {
	if err := s.profiles.UpsertRole(ctx, profile.ID, profile.FullName, role); err != nil {
		return fmt.Errorf("persisting role selection: %w", err)
	}
	profile.Role = &role
	return nil
}

// CreateSchool provisions a new school and makes the caller its admin.
//
// The role upsert runs first and is idempotent, so a retry after a partial
// failure re-enters cleanly. The school insert happens before the profile
// link, so a failure can never leave a profile pointing at a school that
// does not exist; if the link itself fails the freshly created school is
// deleted again rather than stranded without an admin.
func (s *Service) CreateSchool(ctx context.Context, profile *model.Profile, name, region, address string) (*model.School, error) {
	if err := s.profiles.UpsertRole(ctx, profile.ID, profile.FullName, model.RoleSchoolAdmin); err != nil {
		return nil, fmt.Errorf("assigning admin role: %w", err)
	}

	school, err := s.insertSchool(ctx, name, region, address)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.LinkSchool(ctx, profile.ID, school.ID, model.RoleSchoolAdmin); err != nil {
		if delErr := s.schools.DeleteSchool(ctx, school.ID); delErr != nil {
			s.log.Error("compensating school delete failed",
				zap.String("school_id", school.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("linking profile to school: %w", err)
	}

	admin := model.RoleSchoolAdmin
	profile.Role = &admin
	profile.SchoolID = &school.ID

	s.log.Info("school created",
		zap.String("school_id", school.ID),
		zap.String("admin_id", profile.ID),
		zap.String("region", region))
	return school, nil
}

// insertSchool generates an id and join code and inserts the row,
// regenerating the code a bounded number of times if the store's uniqueness
// constraint rejects it.
func (s *Service) insertSchool(ctx context.Context, name, region, address string) (*model.School, error) {
	school := model.School{
		ID:     uuid.NewString(),
		Name:   name,
		Region: region,
	}
	if address != "" {
		school.Address = &address
	}

	for attempt := 1; ; attempt++ {
		code, err := NewJoinCode()
		if err != nil {
			return nil, err
		}
		school.JoinCode = code

		err = s.schools.CreateSchool(ctx, school)
		if err == nil {
			return &school, nil
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("creating school: %w", err)
		}
		s.log.Warn("join code collision, regenerating",
			zap.String("school_id", school.ID), zap.Int("attempt", attempt))
	}
}

// JoinSchool links the caller's profile to the school identified by a
// shared join code. Joining is idempotent: repeating it with the same code
// lands on the same final profile state.
func (s *Service) JoinSchool(ctx context.Context, profile *model.Profile, code string) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return ErrCodeNotFound
	}

	schoolID, err := s.resolveCode(ctx, normalized)
	if err != nil {
		return err
	}

	// Keep a previously selected role; a caller who never picked one joins
	// with the least-privileged role.
	role := model.DefaultJoinRole
	if profile.Role != nil {
		role = *profile.Role
	}

	if err := s.profiles.LinkSchool(ctx, profile.ID, schoolID, role); err != nil {
		return fmt.Errorf("linking profile to school: %w", err)
	}

	profile.Role = &role
	profile.SchoolID = &schoolID

	s.log.Info("profile joined school",
		zap.String("school_id", schoolID),
		zap.String("profile_id", profile.ID),
		zap.String("role", role.String()))
	return nil
}

// resolveCode turns a normalized join code into a school id. The privileged
// lookup bypasses row policies (the caller has no membership yet and would
// otherwise see no schools at all); when the store does not provide it, a
// direct row read serves as fallback. Anything short of exactly one match
// is a not-found.
func (s *Service) resolveCode(ctx context.Context, code string) (string, error) {
	schoolID, err := s.schools.LookupSchoolIDByCode(ctx, code)
	if err == nil {
		return schoolID, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrCodeNotFound
	}
	if !errors.Is(err, store.ErrUnsupported) {
		return "", fmt.Errorf("resolving school code: %w", err)
	}

	s.log.Debug("privileged code lookup unavailable, falling back to row read")
	school, err := s.schools.GetSchoolByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrCodeNotFound
		}
		return "", fmt.Errorf("resolving school code: %w", err)
	}
	return school.ID, nil
}
