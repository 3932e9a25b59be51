package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/quozen/internal/auth"
	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// userKey is the context key for the authenticated caller.
const userKey contextKey = "user"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated caller from the context.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	user, _ := UserFromContext(ctx)
	return user.ID
}

// bearerToken parses "Bearer <token>" from the Authorization header.
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and adds
// the caller to the request context. Expired tokens are reported as a
// session-expired storage error so clients know to sign in again.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// Extract Authorization header
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			// Validate token
			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				slog.Warn("Rejected bearer token", "procedure", req.Spec().Procedure, "error", err)
			}
			if errors.Is(err, auth.ErrTokenExpired) {
				return nil, connect.NewError(connect.CodeUnauthenticated, storage.SessionExpired(req.Spec().Procedure, err))
			}
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			// Call the next handler with enriched context
			return next(WithUser(ctx, claims.User()), req)
		}
	}
}
