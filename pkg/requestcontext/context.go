// Package requestcontext carries request-scoped values (verified e-mail,
// bound account, client metadata, request id, pinned "now") through
// context.Context so services never import net/http.
//
// Middleware sets the values; tests inject them directly:
//
//	ctx = requestcontext.WithTime(ctx, time.Date(2026, 5, 8, 6, 0, 0, 0, time.UTC))
//	ctx = requestcontext.WithEmail(ctx, "someone@example.org")
package requestcontext

import (
	"context"
	"time"

	id "memberships/pkg/domain"
)

type key int

const (
	keyEmail key = iota
	keyAccountID
	keyClientIP
	keyUserAgent
	keyRequestID
	keyNow
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// Email returns the verified e-mail resolved by the identity provider, or "".
func Email(ctx context.Context) string {
	v, _ := value[string](ctx, keyEmail)
	return v
}

func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyEmail, email)
}

// AccountID returns the account bound to the request, or the nil ID when
// the account middleware has not run.
func AccountID(ctx context.Context) id.AccountID {
	v, _ := value[id.AccountID](ctx, keyAccountID)
	return v
}

func WithAccountID(ctx context.Context, accountID id.AccountID) context.Context {
	return context.WithValue(ctx, keyAccountID, accountID)
}

func ClientIP(ctx context.Context) string {
	v, _ := value[string](ctx, keyClientIP)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := value[string](ctx, keyUserAgent)
	return v
}

// WithClientMetadata stores the caller's IP and raw User-Agent header.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, clientIP)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

func RequestID(ctx context.Context) string {
	v, _ := value[string](ctx, keyRequestID)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now returns the pinned instant, falling back to the wall clock outside a
// request (draw runs, workers).
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, keyNow); ok {
		return t
	}
	return time.Now()
}

// WithTime pins "now" so every window check made under ctx agrees.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyNow, t)
}
