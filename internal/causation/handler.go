package causation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Enqueuer hands causation run tasks to the job queue.
type Enqueuer interface {
	EnqueueCausationRun(ctx context.Context, periodID int64, kind string) (string, error)
}

// Handler serves causation run submission and inspection.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  Enqueuer
	validator *validator.Validate
}

// NewHandler constructs the causation handler. A nil enqueuer makes every
// submitted run execute synchronously.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validator: validator.New()}
}

// MountRoutes registers causation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/causation-runs", h.startRun)
	r.Get("/causation-runs", h.listRuns)
}

type runRequest struct {
	PeriodID int64  `json:"period_id" validate:"required,gt=0"`
	Kind     string `json:"kind" validate:"required,oneof=CURRENT_INTEREST LATE_INTEREST INSURANCE"`
	Sync     bool   `json:"sync"`
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if !req.Sync && h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueCausationRun(r.Context(), req.PeriodID, req.Kind)
		if err != nil {
			if h.logger != nil {
				h.logger.Error("enqueue causation run", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID})
		return
	}

	summary, err := h.service.Run(r.Context(), RunInput{
		PeriodID: req.PeriodID,
		Kind:     loan.BucketKind(req.Kind),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaryResponse(summary))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil || periodID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period_id required")
		return
	}
	summaries, err := h.service.ListRuns(r.Context(), periodID)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("list causation runs", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, period.ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, period.ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Busy", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("causation run", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func summaryResponse(s RunSummary) map[string]any {
	exceptions := make([]map[string]any, 0, len(s.Exceptions))
	for _, e := range s.Exceptions {
		exceptions = append(exceptions, map[string]any{
			"loan_id": e.LoanID,
			"reason":  e.Reason,
		})
	}
	return map[string]any{
		"period_id":     s.PeriodID,
		"kind":          string(s.Kind),
		"processed":     s.Processed,
		"skipped":       s.Skipped,
		"total_accrued": s.TotalAccrued.StringFixed(2),
		"exceptions":    exceptions,
		"started_at":    s.StartedAt,
		"finished_at":   s.FinishedAt,
	}
}
