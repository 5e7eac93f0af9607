package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Drawer

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"memberships/internal/draw"
	"memberships/internal/lottery/service"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/httputil"
	"memberships/pkg/platform/middleware/admin"
	request "memberships/pkg/platform/middleware/request"
	"memberships/pkg/requestcontext"
)

// CronTokenHeader carries the shared secret guarding the draw trigger.
const CronTokenHeader = "X-Cron-Token"

type Service interface {
	Event(ctx context.Context) (*service.EventView, error)
	Account(ctx context.Context, accountID id.AccountID) (*service.AccountView, error)
	Register(ctx context.Context, accountID id.AccountID) (*service.AccountView, error)
	Transfer(ctx context.Context, accountID id.AccountID, code, email string) (*service.AccountView, error)
	Gift(ctx context.Context, accountID id.AccountID, code, email string) (string, error)
}

type Drawer interface {
	Run(ctx context.Context) (draw.Result, error)
}

type Handler struct {
	service   Service
	drawer    Drawer
	cronToken string
	logger    *slog.Logger
}

func New(svc Service, drawer Drawer, cronToken string, logger *slog.Logger) *Handler {
	return &Handler{service: svc, drawer: drawer, cronToken: cronToken, logger: logger}
}

// Register mounts the member routes. Callers apply identity and account
// resolution middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/registration", h.HandleAccount)
	r.Post("/api/registration", h.HandleRegister)
	r.Get("/api/lottery", h.HandleEvent)
	r.Post("/api/transfer", h.HandleTransfer)
	r.Post("/api/gift", h.HandleGift)
}

// RegisterInternal mounts the draw trigger.
func (h *Handler) RegisterInternal(r chi.Router) {
	r.With(admin.RequireToken(CronTokenHeader, h.cronToken, h.logger)).Get("/_/cron", h.HandleCron)
}

type voucherRequest struct {
	Voucher string `json:"voucher"`
	Email   string `json:"email"`
}

type giftResponse struct {
	Result bool   `json:"result"`
	URL    string `json:"url,omitempty"`
}

func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Account(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		h.logFailure(ctx, "failed to load account", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Register(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		h.logFailure(ctx, "failed to register", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Event(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to load event", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req voucherRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.Transfer(ctx, requestcontext.AccountID(ctx), req.Voucher, req.Email)
	if err != nil {
		h.logFailure(ctx, "transfer rejected", err, "voucher", req.Voucher)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleGift answers 201 with the redemption URL, or 401 with result false
// for any rejection.
func (h *Handler) HandleGift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req voucherRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, giftResponse{Result: false})
		return
	}
	url, err := h.service.Gift(ctx, requestcontext.AccountID(ctx), req.Voucher, req.Email)
	if err != nil {
		h.logFailure(ctx, "gift rejected", err, "voucher", req.Voucher)
		httputil.WriteJSON(w, http.StatusUnauthorized, giftResponse{Result: false})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, giftResponse{Result: true, URL: url})
}

// HandleCron runs one draw and answers "k" once it has finished. A caller
// hanging up does not cancel the run.
func (h *Handler) HandleCron(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.drawer.Run(context.WithoutCancel(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "draw trigger failed",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "draw triggered",
		"outcome", res.Outcome,
		"allocated", res.Allocated,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteText(w, http.StatusOK, "k")
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", request.GetRequestID(ctx))
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
