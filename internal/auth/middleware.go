package auth

import (
	"context"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"rallysphere/internal/utils"
)

type contextKey string

const sessionKey contextKey = "session"

// Middleware rejects requests without a valid bearer token and stores the
// caller's Session in the request context.
func Middleware(verifier Verifier, tr utils.Localizer, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				log.LogSecurity("MISSING_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				_ = utils.WriteError(w, r, tr, apperr.ErrUnauthorized)
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				_ = utils.WriteError(w, r, tr, apperr.ErrUnauthorized)
				return
			}

			session := models.Session{
				UserID:        claims.Subject,
				Authenticated: true,
				Locale:        claims.Locale,
			}
			if session.Locale == "" {
				session.Locale = r.Header.Get("Accept-Language")
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the caller's session, or an unauthenticated one.
func SessionFrom(ctx context.Context) models.Session {
	if s, ok := ctx.Value(sessionKey).(models.Session); ok {
		return s
	}
	return models.Session{}
}
