package middleware

import (
	"context"

	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// WithIdentity injects the resolved caller identity into the context.
func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, identity)
}

// IdentityFromContext returns the caller identity seeded by the auth
// middleware. The second return is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (types.Identity, bool) {
	if ctx == nil {
		return types.Identity{}, false
	}
	identity, ok := ctx.Value(ctxIdentity).(types.Identity)
	return identity, ok
}
