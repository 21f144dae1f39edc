package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"habitTrackerAPI/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

// SessionCookie is read when a request carries no Authorization header.
const SessionCookie = "__session"

// SessionMiddleware resolves the caller's session from a bearer token or the session
// cookie. Requests without valid credentials continue as anonymous.
func SessionMiddleware(verifier session.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.Anonymous()

			token, err := TokenFromRequest(r)
			if err == nil {
				s, err = verifier.Verify(r.Context(), token)
				if err != nil {
					logger.Info("Token verification failed", zap.Error(err))
					authRejections.WithLabelValues("invalid_token").Inc()
				}
			}

			ctx := context.WithValue(r.Context(), SessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			respondWithError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest extracts the token from "Authorization: Bearer <token>" or the
// session cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || token == "" {
			return "", errors.New("invalid authorization format, use 'Bearer <token>'")
		}
		return token, nil
	}

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", session.ErrNoToken
}

// GetSession returns the authenticated session stored by SessionMiddleware.
func GetSession(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(SessionKey).(session.Session)
	if !ok || !s.IsAuthenticated() {
		return session.Anonymous(), false
	}
	return s, true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"error": "` + message + `"}`))
}
