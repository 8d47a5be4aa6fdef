package identity

import (
	"context"
	"strings"
)

// Identity is the authenticated-session reference issued by the external
// auth provider. This service never creates, mutates or deletes identities;
// it only reads them off validated tokens.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// FallbackName derives a best-effort display name for a fresh profile:
// prefer an explicit full-name claim, else the local part of the email,
// else empty.
func (i *Identity) FallbackName() string {
	if name := strings.TrimSpace(i.FullName); name != "" {
		return name
	}
	if i.Email != "" {
		if at := strings.IndexByte(i.Email, '@'); at > 0 {
			return i.Email[:at]
		}
		return i.Email
	}
	return ""
}

type contextKey struct{}

// NewContext returns a context carrying the authenticated identity.
func NewContext(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext retrieves the authenticated identity, or nil when the request
// carries none.
func FromContext(ctx context.Context) *Identity {
	ident, ok := ctx.Value(contextKey{}).(*Identity)
	if !ok {
		return nil
	}
	return ident
}
