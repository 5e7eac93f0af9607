package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/account/service"
	"memberships/internal/account/store"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type noBirths struct{}

func (noBirths) DateOfBirth(context.Context, id.AccountID) (string, error) {
	return "", sentinel.ErrNotFound
}

func TestResolveAccount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := store.NewInMemory(nil)
	svc := service.New(accounts, noBirths{}, nil)

	var resolved id.AccountID
	h := ResolveAccount(svc, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved = requestcontext.AccountID(r.Context())
	}))

	t.Run("creates account for verified email", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/registration", nil)
		r = r.WithContext(requestcontext.WithEmail(r.Context(), "new@example.org"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		require.Equal(t, http.StatusOK, rr.Code)
		acc, err := accounts.FindByEmail(context.Background(), "new@example.org")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, resolved)
	})

	t.Run("missing email is unauthorized", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/registration", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
