package allocation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Handler serves payment submission.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the allocation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/loans/{id}/payments", h.postPayment)
}

type paymentRequest struct {
	EventID      string `json:"event_id" validate:"required,uuid4"`
	Amount       string `json:"amount" validate:"required"`
	PaymentDate  string `json:"payment_date" validate:"required"`
	MovementType string `json:"movement_type" validate:"required"`
	Source       string `json:"source" validate:"required,oneof=TELLER PAYROLL BANK_FILE"`
}

type allocationLineResponse struct {
	BucketID int64  `json:"bucket_id"`
	Kind     string `json:"kind"`
	Amount   string `json:"amount"`
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || loanID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid event id")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid amount")
		return
	}
	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment date")
		return
	}

	result, err := h.service.Apply(r.Context(), loan.PaymentEvent{
		ID:           eventID,
		LoanID:       loanID,
		Amount:       amount,
		PaymentDate:  paymentDate,
		MovementType: req.MovementType,
		Source:       loan.PaymentSource(req.Source),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	lines := make([]allocationLineResponse, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, allocationLineResponse{
			BucketID: line.BucketID,
			Kind:     string(line.Kind),
			Amount:   line.Amount.StringFixed(2),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"event_id": eventID.String(),
		"lines":    lines,
		"credit":   result.Credit.StringFixed(2),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var invariant *loan.InvariantError
	switch {
	case errors.Is(err, loan.ErrLoanNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, loan.ErrLoanNotActive):
		httpx.Problem(w, http.StatusConflict, "Loan Not Active", err.Error())
	case errors.Is(err, loan.ErrDuplicatePaymentEvent):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Busy", err.Error())
	case errors.As(err, &invariant), errors.Is(err, ErrAllocationInvariant):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invariant Violation", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("apply payment", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
