package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"memberships/internal/questionnaire/models"
	"memberships/internal/questionnaire/service"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/httputil"
	request "memberships/pkg/platform/middleware/request"
	pstrings "memberships/pkg/platform/strings"
	"memberships/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, accountID id.AccountID, setID int64) (*service.AnsweredSet, error)
	Answer(ctx context.Context, accountID id.AccountID, setID int64, values map[int64]models.AnswerValue) (*service.AnsweredSet, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the questionnaire routes. Callers apply identity and
// account resolution middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/questions/{id}", h.HandleGet)
	r.Post("/api/questions/{id}", h.HandleAnswer)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	setID, err := parseSetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	set, err := h.service.Get(ctx, requestcontext.AccountID(ctx), setID)
	if err != nil {
		h.logFailure(ctx, "failed to load question set", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSetResponse(set))
}

// HandleAnswer accepts {"<question id>": "text" | ["<option id>", ...]}.
func (h *Handler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	setID, err := parseSetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var raw map[string]json.RawMessage
	if err := httputil.DecodeJSON(r, &raw); err != nil {
		httputil.WriteError(w, err)
		return
	}
	values, err := parseAnswers(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	set, err := h.service.Answer(ctx, requestcontext.AccountID(ctx), setID, values)
	if err != nil {
		h.logFailure(ctx, "failed to save answers", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSetResponse(set))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
		return
	}
	h.logger.WarnContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
}

func parseSetID(r *http.Request) (int64, error) {
	setID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid question set id")
	}
	return setID, nil
}

func parseAnswers(raw map[string]json.RawMessage) (map[int64]models.AnswerValue, error) {
	values := make(map[int64]models.AnswerValue, len(raw))
	for key, body := range raw {
		questionID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid question id "+strconv.Quote(key))
		}

		var text string
		if err := json.Unmarshal(body, &text); err == nil {
			values[questionID] = models.Text(text)
			continue
		}
		var list []string
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "answer for question "+key+" must be a string or a list of strings")
		}
		optionIDs, err := pstrings.ParseIDs(list)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid selection for question "+key)
		}
		values[questionID] = models.Selections(optionIDs)
	}
	return values, nil
}
