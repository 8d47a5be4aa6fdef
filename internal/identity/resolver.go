package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/store"
	"github.com/kmohamed-dz/abcher/prometheus"
)

// ProfileStore is the slice of the data store the resolver needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	EnsureProfile(ctx context.Context, profile model.Profile) error
}

// Resolver turns an authenticated identity into its profile row,
// self-healing when the row does not exist yet. A profile hidden by row
// policy is a recoverable, expected state for a not-yet-provisioned
// backend, so the resolver reports it as an absent profile, never an error.
type Resolver struct {
	profiles ProfileStore
	log      *zap.Logger
}

// NewResolver creates a Resolver over an injected profile store.
func NewResolver(profiles ProfileStore, log *zap.Logger) *Resolver {
	return &Resolver{profiles: profiles, log: log}
}

// Resolve returns the caller's identity and profile.
//
// With no authenticated identity on the context both results are nil and
// the caller must redirect to sign-in. Otherwise the profile is fetched,
// and if missing, created once with a conflict-safe insert keyed on the
// identity id before a re-fetch. Concurrent calls from multiple devices
// converge on exactly one row.
func (r *Resolver) Resolve(ctx context.Context) (*Identity, *model.Profile, error) {
	ident := FromContext(ctx)
	if ident == nil {
		return nil, nil, nil
	}

	profile, err := r.profiles.GetProfile(ctx, ident.ID)
	if err == nil {
		return ident, profile, nil
	}
	if errors.Is(err, store.ErrPermissionDenied) {
		r.log.Debug("profile read denied by row policy", zap.String("identity_id", ident.ID))
		return ident, nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	// First authenticated access: create the row, then re-read it. The
	// insert is a no-op when a racing device got there first.
	err = r.profiles.EnsureProfile(ctx, model.Profile{
		ID:       ident.ID,
		FullName: ident.FallbackName(),
	})
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			r.log.Debug("profile bootstrap denied by row policy", zap.String("identity_id", ident.ID))
			return ident, nil, nil
		}
		return nil, nil, err
	}
	r.log.Info("profile bootstrapped", zap.String("identity_id", ident.ID))
	prometheus.ProfileBootstrapCounter.Inc()

	profile, err = r.profiles.GetProfile(ctx, ident.ID)
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) || errors.Is(err, store.ErrNotFound) {
			return ident, nil, nil
		}
		return nil, nil, err
	}
	return ident, profile, nil
}
