package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "memberships/pkg/platform/middleware/request"
)

// RequireToken guards internal endpoints (cron trigger, provider webhook) with
// a shared secret header. An empty expected token disables the check.
func RequireToken(header, expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "internal token mismatch",
					"header", header,
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
