package middleware

import (
	"context"
	"net/http"
	"strings"

	"meetmap-backend/internal/apperr"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequireAuth rejects requests without a live session token.
func RequireAuth(sessions *services.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				apperr.Write(w, apperr.Unauthenticated("authentication required"))
				return
			}

			user, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				log.Error().Err(err).Msg("Failed to resolve session")
				apperr.Write(w, apperr.Internal(err))
				return
			}
			if user == nil {
				apperr.Write(w, apperr.Unauthenticated("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller when a live token is presented and lets
// anonymous requests through.
func OptionalAuth(sessions *services.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				log.Error().Err(err).Msg("Failed to resolve session")
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) models.ID {
	userID, ok := ctx.Value(userIDKey).(models.ID)
	if !ok {
		return ""
	}
	return userID
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID models.ID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
