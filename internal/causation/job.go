package causation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/jobs"
)

// RunJob processes causation run tasks from the queue.
type RunJob struct {
	service *Service
	logger  *slog.Logger
}

// NewRunJob constructs a job handler.
func NewRunJob(service *Service, logger *slog.Logger) *RunJob {
	return &RunJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. The underlying run is
// idempotent per (loan, period, kind), so asynq retries are safe.
func (j *RunJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.CausationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.PeriodID == 0 || payload.Kind == "" {
		return asynq.SkipRetry
	}
	summary, err := j.service.Run(ctx, RunInput{
		PeriodID: payload.PeriodID,
		Kind:     loan.BucketKind(payload.Kind),
	})
	if err != nil {
		if j.logger != nil {
			j.logger.Error("causation run",
				slog.Int64("period_id", payload.PeriodID),
				slog.String("kind", payload.Kind),
				slog.Any("error", err))
		}
		return err
	}
	if len(summary.Exceptions) > 0 && j.logger != nil {
		j.logger.Warn("causation run completed with exceptions",
			slog.Int64("period_id", payload.PeriodID),
			slog.String("kind", payload.Kind),
			slog.Int("exceptions", len(summary.Exceptions)))
	}
	return nil
}

// PeriodResolver resolves the accounting period for a calendar month.
type PeriodResolver interface {
	GetByMonth(ctx context.Context, year int, month time.Month) (period.Period, error)
}

// SweepJob runs the monthly scheduled causation: all accrual kinds against the
// period of the month that just ended.
type SweepJob struct {
	service *Service
	periods PeriodResolver
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweepJob constructs the scheduled sweep handler.
func NewSweepJob(service *Service, periods PeriodResolver, logger *slog.Logger) *SweepJob {
	return &SweepJob{service: service, periods: periods, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (j *SweepJob) WithNow(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// Handle accrues every kind for the previous calendar month. Kinds run
// sequentially so their markers land in a stable order; each run isolates
// per-loan failures on its own.
func (j *SweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	prev := j.now().AddDate(0, -1, 0)
	p, err := j.periods.GetByMonth(ctx, prev.Year(), prev.Month())
	if err != nil {
		if j.logger != nil {
			j.logger.Error("causation sweep: resolve period", slog.Any("error", err))
		}
		return err
	}
	for _, kind := range loan.AccrualKinds {
		summary, err := j.service.Run(ctx, RunInput{PeriodID: p.ID, Kind: kind})
		if err != nil {
			if j.logger != nil {
				j.logger.Error("causation sweep",
					slog.Int64("period_id", p.ID),
					slog.String("kind", string(kind)),
					slog.Any("error", err))
			}
			return err
		}
		if len(summary.Exceptions) > 0 && j.logger != nil {
			j.logger.Warn("causation sweep completed with exceptions",
				slog.Int64("period_id", p.ID),
				slog.String("kind", string(kind)),
				slog.Int("exceptions", len(summary.Exceptions)))
		}
	}
	return nil
}
