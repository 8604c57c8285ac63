package middleware

import (
	"context"
	"net/http"

	"roomly/pkg/logger"
)

const UserIDKey contextKey = "user_id"

// UserIDHeader carries the caller identity resolved by the upstream
// authentication layer. This service trusts it and performs no credential
// checks of its own.
const UserIDHeader = "X-User-Id"

func Identity(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(UserIDHeader)
			if userID == "" {
				log.Warn("Missing caller identity",
					"request_id", requestIDFromContext(r.Context()),
					"path", r.URL.Path,
					"method", r.Method,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Missing caller identity"}`))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated caller identity, or "" when the request
// did not pass through the Identity middleware.
func UserID(ctx context.Context) string {
	if v := ctx.Value(UserIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
