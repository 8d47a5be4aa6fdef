package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/store"
)

type fakeProfileStore struct {
	mu          sync.Mutex
	rows        map[string]model.Profile
	getErr      error
	ensureErr   error
	ensureCalls int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{rows: map[string]model.Profile{}}
}

func (f *fakeProfileStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (f *fakeProfileStore) EnsureProfile(_ context.Context, profile model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	// insert-or-no-op on conflict, keyed on id
	if _, exists := f.rows[profile.ID]; !exists {
		f.rows[profile.ID] = profile
	}
	return nil
}

func authedContext(id, email, fullName string) context.Context {
	return NewContext(context.Background(), &Identity{ID: id, Email: email, FullName: fullName})
}

func TestResolveUnauthenticated(t *testing.T) {
	resolver := NewResolver(newFakeProfileStore(), zap.NewNop())

	ident, profile, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ident != nil || profile != nil {
		t.Fatalf("expected nil identity and profile, got %v / %v", ident, profile)
	}
}

func TestResolveExistingProfile(t *testing.T) {
	profiles := newFakeProfileStore()
	role := model.RoleTeacher
	profiles.rows["u1"] = model.Profile{ID: "u1", FullName: "Amine", Role: &role}
	resolver := NewResolver(profiles, zap.NewNop())

	ident, profile, err := resolver.Resolve(authedContext("u1", "amine@example.com", ""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ident == nil || ident.ID != "u1" {
		t.Fatalf("expected identity u1, got %v", ident)
	}
	if profile == nil || profile.FullName != "Amine" {
		t.Fatalf("expected existing profile, got %v", profile)
	}
	if profiles.ensureCalls != 0 {
		t.Fatalf("expected no bootstrap write, got %d", profiles.ensureCalls)
	}
}

func TestResolveBootstrapsMissingProfile(t *testing.T) {
	profiles := newFakeProfileStore()
	resolver := NewResolver(profiles, zap.NewNop())

	ident, profile, err := resolver.Resolve(authedContext("u1", "amine@example.com", ""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ident == nil {
		t.Fatalf("expected identity")
	}
	if profile == nil {
		t.Fatalf("expected bootstrapped profile")
	}
	if profile.FullName != "amine" {
		t.Fatalf("expected email-derived name %q, got %q", "amine", profile.FullName)
	}
	if profile.Role != nil || profile.SchoolID != nil {
		t.Fatalf("expected empty role and school, got %v / %v", profile.Role, profile.SchoolID)
	}
	if len(profiles.rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(profiles.rows))
	}
}

func TestResolvePrefersFullNameClaim(t *testing.T) {
	profiles := newFakeProfileStore()
	resolver := NewResolver(profiles, zap.NewNop())

	_, profile, err := resolver.Resolve(authedContext("u1", "amine@example.com", "  Amine B.  "))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.FullName != "Amine B." {
		t.Fatalf("expected claim-derived name, got %q", profile.FullName)
	}
}

func TestResolvePermissionDeniedIsNotAnError(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.getErr = store.ErrPermissionDenied
	resolver := NewResolver(profiles, zap.NewNop())

	ident, profile, err := resolver.Resolve(authedContext("u1", "amine@example.com", ""))
	if err != nil {
		t.Fatalf("expected denied read to be swallowed, got %v", err)
	}
	if ident == nil {
		t.Fatalf("expected identity to survive a denied read")
	}
	if profile != nil {
		t.Fatalf("expected inaccessible profile to be nil")
	}
}

func TestResolveDeniedBootstrapIsNotAnError(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.ensureErr = store.ErrPermissionDenied
	resolver := NewResolver(profiles, zap.NewNop())

	ident, profile, err := resolver.Resolve(authedContext("u1", "amine@example.com", ""))
	if err != nil {
		t.Fatalf("expected denied bootstrap to be swallowed, got %v", err)
	}
	if ident == nil || profile != nil {
		t.Fatalf("expected (identity, nil), got %v / %v", ident, profile)
	}
}

func TestResolvePropagatesFaults(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.getErr = errors.New("connection reset")
	resolver := NewResolver(profiles, zap.NewNop())

	_, _, err := resolver.Resolve(authedContext("u1", "amine@example.com", ""))
	if err == nil {
		t.Fatalf("expected fault to propagate")
	}
}

func TestConcurrentBootstrapCreatesOneRow(t *testing.T) {
	profiles := newFakeProfileStore()
	resolver := NewResolver(profiles, zap.NewNop())
	ctx := authedContext("u1", "amine@example.com", "")

	const devices = 8
	var wg sync.WaitGroup
	errs := make(chan error, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, profile, err := resolver.Resolve(ctx)
			if err != nil {
				errs <- err
				return
			}
			if profile == nil {
				errs <- errors.New("nil profile")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent resolve failed: %v", err)
	}

	if len(profiles.rows) != 1 {
		t.Fatalf("expected exactly one profile row, got %d", len(profiles.rows))
	}
}

func TestFallbackName(t *testing.T) {
	cases := map[string]struct {
		identity Identity
		expect   string
	}{
		"full name claim":  {Identity{FullName: "Amine B.", Email: "amine@example.com"}, "Amine B."},
		"email local part": {Identity{Email: "amine@example.com"}, "amine"},
		"bare email":       {Identity{Email: "amine"}, "amine"},
		"nothing":          {Identity{}, ""},
	}
	for name, tc := range cases {
		if got := tc.identity.FallbackName(); got != tc.expect {
			t.Fatalf("%s: expected %q, got %q", name, tc.expect, got)
		}
	}
}
