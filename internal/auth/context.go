package auth

import (
	"context"
	"strings"

	"sitetrack.io/internal/model"
)

// Identity is the authenticated caller. Role is the role asserted by the
// token; authorization decisions re-read the user record.
type Identity struct {
	UserID string
	Role   model.Role
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	id.UserID = strings.TrimSpace(id.UserID)
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v.UserID == "" {
		return Identity{}, false
	}
	return v, true
}
