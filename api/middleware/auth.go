package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aurelia-commerce/storefront-backend/api/responses"
	pkgauth "github.com/aurelia-commerce/storefront-backend/pkg/auth"
	"github.com/aurelia-commerce/storefront-backend/pkg/config"
	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

// Auth validates a bearer token and seeds the request context with the
// caller identity. Requests without valid credentials are rejected.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			identity, err := resolveIdentity(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(seedContext(r, logg, identity)))
		})
	}
}

// OptionalAuth resolves the identity when a bearer token is present and lets
// anonymous requests through untouched. Guest checkout relies on this.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := resolveIdentity(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(seedContext(r, logg, identity)))
		})
	}
}

// RequireAdmin rejects callers whose identity does not carry the admin role.
// It must run after Auth.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !identity.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func resolveIdentity(cfg config.JWTConfig, token string) (types.Identity, error) {
	claims, err := pkgauth.ParseAccessToken(cfg, token)
	if err != nil {
		return types.Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if !claims.Role.IsValid() {
		return types.Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token role")
	}
	return types.Identity{
		UserID: claims.UserID,
		Role:   claims.Role,
		Name:   claims.Name,
	}, nil
}

func seedContext(r *http.Request, logg *logger.Logger, identity types.Identity) context.Context {
	out := WithIdentity(r.Context(), identity)
	if logg != nil {
		out = logg.WithFields(out, map[string]any{
			"user_id":    identity.UserID.String(),
			"actor_role": string(identity.Role),
		})
	}
	return out
}
