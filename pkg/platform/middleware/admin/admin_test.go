package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled when no token configured", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireToken("X-Cron-Token", "", logger)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/_/cron", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("rejects mismatch", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/_/cron", nil)
		r.Header.Set("X-Cron-Token", "nope")
		rr := httptest.NewRecorder()
		RequireToken("X-Cron-Token", "secret", logger)(ok).ServeHTTP(rr, r)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("accepts match", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/_/cron", nil)
		r.Header.Set("X-Cron-Token", "secret")
		rr := httptest.NewRecorder()
		RequireToken("X-Cron-Token", "secret", logger)(ok).ServeHTTP(rr, r)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
