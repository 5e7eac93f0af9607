package handler

import (
	"context"
	"log/slog"
	"net/http"

	"memberships/internal/account/models"
	"memberships/pkg/platform/httputil"
	request "memberships/pkg/platform/middleware/request"
	"memberships/pkg/requestcontext"
)

type AccountResolver interface {
	GetOrCreate(ctx context.Context, email string) (*models.Account, error)
}

// ResolveAccount binds the authenticated e-mail to an account, creating it on
// first use. Must run after identity verification.
func ResolveAccount(accounts AccountResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			acc, err := accounts.GetOrCreate(ctx, requestcontext.Email(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve account",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			ctx = requestcontext.WithAccountID(ctx, acc.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
