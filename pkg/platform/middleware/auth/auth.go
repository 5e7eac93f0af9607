// Package auth rejects member requests that do not carry a bearer token for a
// verified e-mail address.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/httputil"
	request "memberships/pkg/platform/middleware/request"
	"memberships/pkg/requestcontext"
)

// Identity is what the identity provider vouches for about the caller.
type Identity struct {
	Email    string
	Verified bool
}

// TokenVerifier resolves a bearer token to a verified identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// RequireIdentity stores the lower-cased verified e-mail on the request
// context. Rejected requests get a 401 and never reach next.
func RequireIdentity(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason string, err error) {
				logger.WarnContext(ctx, "member request rejected",
					"reason", reason,
					"error", err,
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, reason))
			}

			token, ok := bearerToken(r)
			if !ok {
				reject("missing or invalid Authorization header", nil)
				return
			}
			identity, err := verifier.Verify(ctx, token)
			if err != nil {
				reject("invalid or expired token", err)
				return
			}
			if !identity.Verified || identity.Email == "" {
				reject("email address not verified", nil)
				return
			}

			ctx = requestcontext.WithEmail(ctx, strings.ToLower(identity.Email))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
