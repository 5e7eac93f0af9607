package httpserver

import (
	"net/http"
	"time"

	"memberships/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	idleTimeout       = 120 * time.Second
)

// New builds the HTTP server for cfg. WriteTimeout must outlast an inline
// draw triggered through the cron endpoint, so it is configured separately
// from the per-request handler timeout.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	write := cfg.WriteTimeout
	if write < cfg.RequestTimeout {
		write = cfg.RequestTimeout + readTimeout
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      write,
		IdleTimeout:       idleTimeout,
	}
}
