package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means the queried row does not exist. For profiles this is
	// an expected state during bootstrap, not a fault.
	ErrNotFound = errors.New("row not found")

	// ErrPermissionDenied means a row policy rejected the read or write.
	// Callers that have not finished onboarding hit this routinely; it is
	// distinct from ErrNotFound and must never be surfaced as a failure.
	ErrPermissionDenied = errors.New("permission denied by row policy")

	// ErrDuplicate means a unique constraint rejected the write.
	ErrDuplicate = errors.New("unique constraint violation")

	// ErrUnsupported means the backing store does not provide the requested
	// primitive (e.g. the privileged join-code lookup function is missing).
	ErrUnsupported = errors.New("operation not supported by store")
)

// Postgres SQLSTATE codes the store classifies.
const (
	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
	pgUndefinedFunction     = "42883"
)

// classify maps driver and gorm errors onto the store's error taxonomy so
// callers can branch with errors.Is without importing driver packages.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgInsufficientPrivilege:
			return ErrPermissionDenied
		case pgUndefinedFunction:
			return ErrUnsupported
		}
	}

	// Hosted backends phrase policy rejections inconsistently; fall back to
	// message sniffing the way the webapp did.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "row-level security") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "not allowed") {
		return ErrPermissionDenied
	}

	return err
}

// Store is the gorm-backed implementation of the narrow store interfaces
// declared by the domain packages (identity.ProfileStore,
// onboarding.SchoolStore, chat.MessageStore). It holds no global state; the
// *gorm.DB handle is injected so tests can substitute fakes at the
// interface seam instead.
type Store struct {
	db *gorm.DB
}

// New creates a Store around an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}
