package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"memberships/internal/platform/config"
)

func TestNewWriteTimeoutOutlastsRequestTimeout(t *testing.T) {
	srv := New(config.ServerConfig{Addr: ":0", RequestTimeout: 30 * time.Second, WriteTimeout: 5 * time.Second}, http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 45*time.Second, srv.WriteTimeout)

	srv = New(config.ServerConfig{RequestTimeout: 30 * time.Second, WriteTimeout: 5 * time.Minute}, http.NotFoundHandler())
	assert.Equal(t, 5*time.Minute, srv.WriteTimeout)
}
