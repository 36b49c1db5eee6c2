package schedule

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
)

// Handler serves schedule simulation and loan origination.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the schedule handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers schedule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/simulations", h.simulate)
	r.Post("/loans", h.originate)
}

type termsRequest struct {
	Principal     string `json:"principal" validate:"required"`
	AnnualRate    string `json:"annual_rate" validate:"required"`
	TermCount     int    `json:"term_count" validate:"required,gt=0"`
	Financing     string `json:"financing" validate:"required,oneof=DECLINING_BALANCE FLAT"`
	FrequencyKind string `json:"frequency_kind" validate:"required,oneof=INTERVAL_DAYS MONTHLY_CALENDAR SEMI_MONTHLY"`
	IntervalDays  int    `json:"interval_days" validate:"gte=0"`
	AnchorDay     int    `json:"anchor_day" validate:"gte=0,lte=31"`
	Adjustment    string `json:"adjustment" validate:"omitempty,oneof=NONE FORWARD BACKWARD"`
	Origination   string `json:"origination_date" validate:"required"`
}

type originateRequest struct {
	termsRequest
	Number         string  `json:"number" validate:"required"`
	LateAnnualRate *string `json:"late_annual_rate"`
	InsuranceRate  *string `json:"insurance_rate"`
}

type installmentResponse struct {
	Seq       int    `json:"seq"`
	DueDate   string `json:"due_date"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Status    string `json:"status"`
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	terms, err := req.toTerms()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	installments, err := h.service.Simulate(terms)
	if err != nil {
		respondScheduleError(w, h.logger, "simulate schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"installments": installmentResponses(installments),
	})
}

func (h *Handler) originate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	terms, err := req.toTerms()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := OriginateInput{Number: req.Number, Terms: terms}
	if input.LateAnnualRate, err = parseOptionalRate(req.LateAnnualRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if input.InsuranceRate, err = parseOptionalRate(req.InsuranceRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, installments, err := h.service.Originate(r.Context(), input)
	if err != nil {
		respondScheduleError(w, h.logger, "originate loan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"loan_id":      created.ID,
		"number":       created.Number,
		"principal":    created.Principal.StringFixed(2),
		"installments": installmentResponses(installments),
	})
}

func (req termsRequest) toTerms() (Terms, error) {
	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return Terms{}, err
	}
	rate, err := decimal.NewFromString(req.AnnualRate)
	if err != nil {
		return Terms{}, err
	}
	origination, err := time.Parse("2006-01-02", req.Origination)
	if err != nil {
		return Terms{}, err
	}
	adjustment := calendar.AdjustNone
	if req.Adjustment != "" {
		adjustment = calendar.WeekendAdjustment(req.Adjustment)
	}
	return Terms{
		Principal:  principal,
		AnnualRate: rate,
		TermCount:  req.TermCount,
		Frequency: calendar.DueDatePolicy{
			Kind:         calendar.PolicyKind(req.FrequencyKind),
			IntervalDays: req.IntervalDays,
			AnchorDay:    req.AnchorDay,
		},
		Financing:   Financing(req.Financing),
		Origination: origination,
		Adjustment:  adjustment,
	}, nil
}

func parseOptionalRate(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	rate, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func installmentResponses(installments []loan.Installment) []installmentResponse {
	out := make([]installmentResponse, 0, len(installments))
	for _, inst := range installments {
		out = append(out, installmentResponse{
			Seq:       inst.Seq,
			DueDate:   inst.DueDate.Format("2006-01-02"),
			Principal: inst.Principal.StringFixed(2),
			Interest:  inst.Interest.StringFixed(2),
			Status:    string(inst.Status),
		})
	}
	return out
}

func respondScheduleError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidPrincipal),
		errors.Is(err, ErrInvalidRate),
		errors.Is(err, ErrInvalidTerm),
		errors.Is(err, ErrInvalidFinancing),
		errors.Is(err, ErrNumberRequired),
		errors.Is(err, calendar.ErrInvalidPolicy):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if logger != nil {
			logger.Error(op, slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
