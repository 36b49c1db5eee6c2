package bankfile

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
)

// Handler serves the bank-file surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the bank-file handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers bank-file routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bank-files/settlement-feed", h.settlementFeed)
	r.Post("/bank-files/payments", h.importPayments)
}

func (h *Handler) settlementFeed(w http.ResponseWriter, r *http.Request) {
	valueDate := time.Now()
	if raw := r.URL.Query().Get("value_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid value_date")
			return
		}
		valueDate = parsed
	}
	feed, err := h.service.BuildFeed(r.Context(), valueDate)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("build settlement feed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := feed.Render(w); err != nil && h.logger != nil {
		h.logger.Error("render settlement feed", slog.Any("error", err))
	}
}

func (h *Handler) importPayments(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Import(r.Context(), r.Body)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid File", err.Error())
		return
	}
	failures := make([]map[string]any, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, map[string]any{
			"loan_number": f.LoanNumber,
			"reason":      f.Reason,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"applied":  summary.Applied,
		"failures": failures,
	})
}
