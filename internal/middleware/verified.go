package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/qrclaim/server/internal/auth"
)

type contextKey string

const verifiedPhoneKey contextKey = "verified_phone"

// RequireVerifiedPhone validates the Bearer verified-session token and
// attaches its phone number to the request context. Requests without a valid
// token never reach the claim path.
func RequireVerifiedPhone(sessions *auth.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "unauthorized", "missing token")
				return
			}

			claims, err := sessions.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired verification token")
				return
			}

			ctx := context.WithValue(r.Context(), verifiedPhoneKey, claims.Phone)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetVerifiedPhone returns the phone attached by RequireVerifiedPhone.
func GetVerifiedPhone(ctx context.Context) (string, bool) {
	phone, ok := ctx.Value(verifiedPhoneKey).(string)
	return phone, ok
}
