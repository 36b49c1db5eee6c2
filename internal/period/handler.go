package period

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Handler serves accounting period management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the period handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/periods", h.createPeriod)
	r.Get("/periods/{id}", h.getPeriod)
	r.Get("/periods/{id}/causation-status", h.causationStatus)
	r.Post("/periods/{id}/close", h.closePeriod)
}

type createPeriodRequest struct {
	Year  int `json:"year" validate:"required,gte=1900"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Create(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.respondError(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, periodResponse(p))
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, periodResponse(p))
}

func (h *Handler) causationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	missing, err := h.service.CausationStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, "causation status", err)
		return
	}
	pairs := make([]map[string]any, 0, len(missing))
	for _, m := range missing {
		pairs = append(pairs, map[string]any{"loan_id": m.LoanID, "kind": string(m.Kind)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period_id": id,
		"complete":  len(missing) == 0,
		"missing":   pairs,
	})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Close(r.Context(), id)
	if err != nil {
		h.respondError(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, periodResponse(p))
}

func (h *Handler) periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var incomplete *IncompleteCausationError
	switch {
	case errors.Is(err, ErrInvalidMonth):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPeriodExists), errors.Is(err, ErrPeriodAlreadyClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &incomplete):
		httpx.Problem(w, http.StatusPreconditionFailed, "Causation Incomplete", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Busy", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func periodResponse(p Period) map[string]any {
	resp := map[string]any{
		"id":         p.ID,
		"year":       p.Year,
		"month":      int(p.Month),
		"start_date": p.StartDate.Format("2006-01-02"),
		"end_date":   p.EndDate.Format("2006-01-02"),
		"is_closed":  p.IsClosed,
	}
	if p.ClosedAt != nil {
		resp["closed_at"] = p.ClosedAt
	}
	return resp
}
