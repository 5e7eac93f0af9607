package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"memberships/pkg/requestcontext"
)

type stubVerifier struct {
	identity *Identity
	err      error
}

func (s stubVerifier) Verify(context.Context, string) (*Identity, error) {
	return s.identity, s.err
}

func TestRequireIdentity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		header     string
		verifier   stubVerifier
		wantStatus int
		wantEmail  string
	}{
		{name: "missing header", verifier: stubVerifier{}, wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", verifier: stubVerifier{}, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", verifier: stubVerifier{err: errors.New("signature")}, wantStatus: http.StatusUnauthorized},
		{
			name:       "unverified email",
			header:     "Bearer ok",
			verifier:   stubVerifier{identity: &Identity{Email: "a@example.org"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "verified email is lowercased",
			header:     "Bearer ok",
			verifier:   stubVerifier{identity: &Identity{Email: "A@Example.org", Verified: true}},
			wantStatus: http.StatusOK,
			wantEmail:  "a@example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			var email string
			h := RequireIdentity(tt.verifier, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				email = requestcontext.Email(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/registration", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, r)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			assert.Equal(t, tt.wantEmail, email)
		})
	}
}
