package report

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/statement"
)

// StatementSource loads the statement to render.
type StatementSource interface {
	Get(ctx context.Context, loanID int64) (statement.Statement, error)
}

// Handler serves PDF renditions of loan statements.
type Handler struct {
	client     *Client
	statements StatementSource
	logger     *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, statements StatementSource, logger *slog.Logger) *Handler {
	return &Handler{client: client, statements: statements, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/ping", h.ping)
	r.Get("/loans/{id}/statement.pdf", h.statementPDF)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) statementPDF(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || loanID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	st, err := h.statements.Get(r.Context(), loanID)
	if errors.Is(err, loan.ErrLoanNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load statement", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	html, err := renderStatementHTML(st)
	if err != nil {
		h.logger.Error("render statement html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render statement pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=statement-"+st.Number+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

var statementTemplate = template.Must(template.New("statement").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Statement {{.Number}}</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { border-collapse: collapse; width: 100%; margin-bottom: 16px; }
th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
td.amount, th.amount { text-align: right; }
</style></head><body>
<h1>Loan Statement {{.Number}}</h1>
<p>Status: {{.Status}} &middot; As of {{.AsOf.Format "2006-01-02"}}</p>
<table>
<tr><th>Outstanding principal</th><td class="amount">{{money .OutstandingPrincipal}}</td></tr>
<tr><th>Overdue principal</th><td class="amount">{{money .OverduePrincipal}}</td></tr>
<tr><th>Total outstanding</th><td class="amount">{{money .TotalOutstanding}}</td></tr>
<tr><th>Credit balance</th><td class="amount">{{money .CreditBalance}}</td></tr>
</table>
<h2>Obligations</h2>
<table>
<tr><th>Kind</th><th>Period</th><th>Installment</th><th class="amount">Accrued</th><th class="amount">Paid</th><th class="amount">Outstanding</th></tr>
{{range .Buckets}}<tr><td>{{.Kind}}</td><td>{{.PeriodID}}</td><td>{{.InstallmentSeq}}</td><td class="amount">{{money .Accrued}}</td><td class="amount">{{money .Paid}}</td><td class="amount">{{money .Outstanding}}</td></tr>
{{end}}</table>
<h2>Schedule</h2>
<table>
<tr><th>#</th><th>Due date</th><th class="amount">Principal</th><th class="amount">Interest</th><th>Status</th></tr>
{{range .Schedule}}<tr><td>{{.Seq}}</td><td>{{.DueDate.Format "2006-01-02"}}</td><td class="amount">{{money .Principal}}</td><td class="amount">{{money .Interest}}</td><td>{{.Status}}</td></tr>
{{end}}</table>
</body></html>`))

func renderStatementHTML(st statement.Statement) (string, error) {
	var b strings.Builder
	if err := statementTemplate.Execute(&b, st); err != nil {
		return "", err
	}
	return b.String(), nil
}
