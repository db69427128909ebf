package middleware

import (
	"context"
	"net/http"

	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/handlers/userctx"
	"github.com/snapcal/snapcal/internal/models"
)

// Resolves the request to its user
// AuthService (jwt) and APIKeyService (X-Api-Key) both satisfy it
type authenticator interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware lets the request pass if any authenticator recognizes it
// Authenticators are tried in the given order, first win
func AuthMiddleware(authns ...authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, a := range authns {
				user, err := a.Auth(r.Context(), r)
				if err != nil {
					continue
				}

				ctx := userctx.New(r.Context(), user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

// AdminMiddleware passes only users with the admin flag
// Must be chained after AuthMiddleware
func AdminMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok || !user.IsAdmin {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
