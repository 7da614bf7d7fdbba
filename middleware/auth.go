package middleware

import (
	"context"
	"net/http"
	"strings"

	"coscribe/internal/auth"
	"coscribe/pkg/logger"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom returns the authenticated identity stored by Auth.
func IdentityFrom(ctx context.Context) auth.Identity {
	ident, _ := ctx.Value(identityKey).(auth.Identity)
	return ident
}

// Auth validates the bearer credential and stores the resolved identity
// in the request context. REST calls and websocket handshakes go through
// the same verifier, so anyone who can use the API can open a session.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Browsers cannot set headers on websocket handshakes, so
			// the token may arrive in the query string instead.
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				authHeader := r.Header.Get("Authorization")
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			}

			ident, err := verifier.Verify(tokenString)
			if err != nil {
				if err == auth.ErrMissingToken {
					http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
					return
				}
				logger.Sugar.Warnf("Rejected credential: %v", err)
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
