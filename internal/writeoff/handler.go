package writeoff

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/httpx"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Handler serves the write-off workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the write-off handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers write-off routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/write-offs", h.propose)
	r.Post("/write-offs/{id}/review", h.review)
	r.Post("/write-offs/{id}/execute", h.execute)
}

type proposeRequest struct {
	LoanID  int64  `json:"loan_id" validate:"required,gt=0"`
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
	Note    string `json:"note"`
}

type reviewRequest struct {
	Decision   string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	ReviewerID int64  `json:"reviewer_id" validate:"required,gt=0"`
	Note       string `json:"note"`
}

type executeRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Propose(r.Context(), req.LoanID, req.ActorID, req.Note)
	if err != nil {
		h.respondError(w, "propose write-off", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, caseResponse(c))
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Review(r.Context(), caseID, Decision(req.Decision), req.ReviewerID, req.Note)
	if err != nil {
		h.respondError(w, "review write-off", err)
		return
	}
	httpx.JSON(w, http.StatusOK, caseResponse(c))
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.Execute(r.Context(), caseID, req.ActorID)
	if err != nil {
		h.respondError(w, "execute write-off", err)
		return
	}
	httpx.JSON(w, http.StatusOK, caseResponse(c))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid case id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, loan.ErrLoanNotFound), errors.Is(err, ErrCaseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrLoanNotEligible):
		httpx.Problem(w, http.StatusConflict, "Not Eligible", err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Busy", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func caseResponse(c Case) map[string]any {
	resp := map[string]any{
		"case_id":     c.ID,
		"ref":         c.Ref.String(),
		"loan_id":     c.LoanID,
		"settlement":  c.Settlement.StringFixed(2),
		"state":       string(c.State),
		"proposed_by": c.ProposedBy,
		"proposed_at": c.ProposedAt,
	}
	if c.ReviewedBy != nil {
		resp["reviewed_by"] = *c.ReviewedBy
		resp["reviewed_at"] = c.ReviewedAt
	}
	if c.ExecutedBy != nil {
		resp["executed_by"] = *c.ExecutedBy
		resp["executed_at"] = c.ExecutedAt
	}
	return resp
}
