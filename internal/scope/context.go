package scope

import "context"

type contextKey int

const principalContextKey contextKey = iota

// ContextWithPrincipal returns a new context carrying the given principal.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the principal from the context, or nil if
// not present.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// OrganizationID returns the organization id of the principal on the
// context, or ErrUnauthenticated if there is none.
func OrganizationID(ctx context.Context) (string, error) {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return "", ErrUnauthenticated
	}
	return p.OrganizationID, nil
}
