package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-credit/meridian-credit/internal/allocation"
	"github.com/meridian-credit/meridian-credit/internal/bankfile"
	"github.com/meridian-credit/meridian-credit/internal/causation"
	"github.com/meridian-credit/meridian-credit/internal/observability"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/schedule"
	"github.com/meridian-credit/meridian-credit/internal/statement"
	"github.com/meridian-credit/meridian-credit/internal/writeoff"
	"github.com/meridian-credit/meridian-credit/jobs"
	"github.com/meridian-credit/meridian-credit/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	ScheduleHandler   *schedule.Handler
	AllocationHandler *allocation.Handler
	CausationHandler  *causation.Handler
	PeriodHandler     *period.Handler
	WriteOffHandler   *writeoff.Handler
	StatementHandler  *statement.Handler
	BankFileHandler   *bankfile.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the standard stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ScheduleHandler != nil {
		params.ScheduleHandler.MountRoutes(r)
	}
	if params.AllocationHandler != nil {
		params.AllocationHandler.MountRoutes(r)
	}
	if params.CausationHandler != nil {
		params.CausationHandler.MountRoutes(r)
	}
	if params.PeriodHandler != nil {
		params.PeriodHandler.MountRoutes(r)
	}
	if params.WriteOffHandler != nil {
		params.WriteOffHandler.MountRoutes(r)
	}
	if params.StatementHandler != nil {
		params.StatementHandler.MountRoutes(r)
	}
	if params.BankFileHandler != nil {
		params.BankFileHandler.MountRoutes(r)
	}
	if params.ReportHandler != nil {
		params.ReportHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
