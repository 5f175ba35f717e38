package http

import (
	"context"

	"github.com/example/appointment-desk/internal/application"
)

type principalKey struct{}

// ContextWithPrincipal attaches the verified caller to ctx.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the caller attached by RequireToken. Handlers behind
// the protected subrouter can rely on ok being true.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(application.Principal)
	return principal, ok && principal.UserID != ""
}
