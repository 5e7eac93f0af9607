package testutil

import (
	"net/http"
	"time"

	id "memberships/pkg/domain"
	"memberships/pkg/requestcontext"
)

// AsMember binds the request to an authenticated account, as the identity
// and account resolution middleware would.
func AsMember(req *http.Request, email string, accountID id.AccountID) *http.Request {
	ctx := requestcontext.WithEmail(req.Context(), email)
	ctx = requestcontext.WithAccountID(ctx, accountID)
	return req.WithContext(ctx)
}

// At pins the request-scoped time.
func At(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
