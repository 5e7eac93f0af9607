package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"memberships/pkg/platform/httputil"
	"memberships/pkg/platform/middleware/admin"
	request "memberships/pkg/platform/middleware/request"
)

// HeaderSecret carries the optional shared secret configured on the provider.
const HeaderSecret = "X-Webhook-Secret"

type processor interface {
	Process(ctx context.Context, n Notification) (Outcome, error)
}

type Handler struct {
	processor processor
	secret    string
	logger    *slog.Logger
}

func NewHandler(p processor, secret string, logger *slog.Logger) *Handler {
	return &Handler{processor: p, secret: secret, logger: logger}
}

// Register mounts the webhook outside identity middleware.
func (h *Handler) Register(r chi.Router) {
	r.With(admin.RequireToken(HeaderSecret, h.secret, h.logger)).
		Post("/_/webhooks/pretix", h.HandleNotification)
}

// HandleNotification answers "k" for everything it processed, ignored or
// could not match. Only transient failures are answered with an error so
// the provider redelivers.
func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var n Notification
	if err := httputil.DecodeJSON(r, &n); err != nil {
		h.logger.WarnContext(ctx, "malformed webhook body",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteText(w, http.StatusOK, "k")
		return
	}

	outcome, err := h.processor.Process(ctx, n)
	if err != nil {
		h.logger.ErrorContext(ctx, "webhook processing failed",
			"action", n.Action,
			"order", n.Code,
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "webhook handled",
		"action", n.Action,
		"order", n.Code,
		"outcome", outcome,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteText(w, http.StatusOK, "k")
}
