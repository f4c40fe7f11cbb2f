// Package auth carries the authenticated principal through request contexts.
// Token verification is the platform gateway's job; by the time code in this
// module runs, the principal has already been resolved. Absence of a
// principal is a valid state and every consumer fails closed on it.
package auth

import (
	"context"
	"slices"
)

// Principal identifies the acting caller.
type Principal struct {
	TenantID string
	ActorID  string
	Roles    []string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the Principal from the context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// TenantID returns the tenant of the context principal, or "" when no
// principal is present.
func TenantID(ctx context.Context) string {
	p, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return p.TenantID
}
