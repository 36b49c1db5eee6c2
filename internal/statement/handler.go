package statement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
)

// Handler serves loan statements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the statement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers statement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/loans/{id}/statement", h.getStatement)
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || loanID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
		return
	}
	st, err := h.service.Get(r.Context(), loanID)
	if err != nil {
		if errors.Is(err, loan.ErrLoanNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		if h.logger != nil {
			h.logger.Error("get statement", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, statementResponse(st))
}

func statementResponse(st Statement) map[string]any {
	buckets := make([]map[string]any, 0, len(st.Buckets))
	for _, b := range st.Buckets {
		buckets = append(buckets, map[string]any{
			"kind":            string(b.Kind),
			"period_id":       b.PeriodID,
			"installment_seq": b.InstallmentSeq,
			"accrued":         b.Accrued.StringFixed(2),
			"paid":            b.Paid.StringFixed(2),
			"outstanding":     b.Outstanding.StringFixed(2),
		})
	}
	schedule := make([]map[string]any, 0, len(st.Schedule))
	for _, line := range st.Schedule {
		schedule = append(schedule, map[string]any{
			"seq":       line.Seq,
			"due_date":  line.DueDate.Format("2006-01-02"),
			"principal": line.Principal.StringFixed(2),
			"interest":  line.Interest.StringFixed(2),
			"status":    string(line.Status),
		})
	}
	return map[string]any{
		"loan_id":               st.LoanID,
		"number":                st.Number,
		"status":                string(st.Status),
		"as_of":                 st.AsOf,
		"buckets":               buckets,
		"schedule":              schedule,
		"outstanding_principal": st.OutstandingPrincipal.StringFixed(2),
		"overdue_principal":     st.OverduePrincipal.StringFixed(2),
		"total_outstanding":     st.TotalOutstanding.StringFixed(2),
		"credit_balance":        st.CreditBalance.StringFixed(2),
	}
}
