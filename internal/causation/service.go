package causation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/observability"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Repository abstracts the persistence the processor needs.
type Repository interface {
	GetPeriod(ctx context.Context, id int64) (period.Period, error)
	ListActiveLoans(ctx context.Context) ([]loan.Loan, error)
	LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error)
	HasCausationRun(ctx context.Context, loanID, periodID int64, kind loan.BucketKind) (bool, error)
	LastCausationAt(ctx context.Context, loanID int64, kind loan.BucketKind) (*time.Time, error)
	// PostAccrual inserts the accrual bucket and the causation marker in one
	// transaction; a duplicate marker yields ErrAlreadyCaused.
	PostAccrual(ctx context.Context, in PostAccrualInput) error
	SaveSummary(ctx context.Context, summary RunSummary) error
	ListSummaries(ctx context.Context, periodID int64) ([]RunSummary, error)
}

// Service runs period causation over the active portfolio.
type Service struct {
	repo        Repository
	locker      *shared.Locker
	logger      *slog.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

// NewService constructs the processor.
func NewService(repo Repository, locker *shared.Locker, logger *slog.Logger, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// WithMetrics attaches run counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Run accrues the given kind for every active loan in the period. Loans are
// processed in parallel; the loan is the unit of serialization. A per-loan
// failure becomes a RunException and never aborts the run.
func (s *Service) Run(ctx context.Context, in RunInput) (RunSummary, error) {
	if err := in.Validate(); err != nil {
		return RunSummary{}, err
	}
	p, err := s.repo.GetPeriod(ctx, in.PeriodID)
	if err != nil {
		return RunSummary{}, err
	}
	if p.IsClosed {
		return RunSummary{}, period.ErrPeriodClosed
	}

	release, err := s.locker.Acquire(ctx, shared.PeriodLockKey(in.PeriodID))
	if err != nil {
		return RunSummary{}, err
	}
	defer release()

	loans, err := s.repo.ListActiveLoans(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		PeriodID:     in.PeriodID,
		Kind:         in.Kind,
		TotalAccrued: decimal.Zero,
		StartedAt:    s.now(),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, l := range loans {
		l := l
		g.Go(func() error {
			amount, skipped, err := s.processLoan(gctx, l, p, in.Kind)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Exceptions = append(summary.Exceptions, RunException{LoanID: l.ID, Reason: err.Error()})
			case skipped:
				summary.Skipped++
			default:
				summary.Processed++
				summary.TotalAccrued = summary.TotalAccrued.Add(amount)
			}
			return nil
		})
	}
	_ = g.Wait()
	summary.FinishedAt = s.now()

	if err := s.repo.SaveSummary(ctx, summary); err != nil && s.logger != nil {
		s.logger.Warn("save run summary", slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.ObserveCausationRun(string(in.Kind), summary.Processed, summary.Skipped, len(summary.Exceptions))
	}
	if s.logger != nil {
		s.logger.Info("causation run completed",
			slog.Int64("period_id", in.PeriodID),
			slog.String("kind", string(in.Kind)),
			slog.Int("processed", summary.Processed),
			slog.Int("skipped", summary.Skipped),
			slog.Int("exceptions", len(summary.Exceptions)),
			slog.String("total_accrued", summary.TotalAccrued.StringFixed(2)))
	}
	return summary, nil
}

// ListRuns returns the persisted run summaries of a period, newest first.
func (s *Service) ListRuns(ctx context.Context, periodID int64) ([]RunSummary, error) {
	return s.repo.ListSummaries(ctx, periodID)
}

// processLoan accrues one loan under its loan lock. Returns skipped=true when
// the marker already exists or nothing accrues for the kind.
func (s *Service) processLoan(ctx context.Context, l loan.Loan, p period.Period, kind loan.BucketKind) (decimal.Decimal, bool, error) {
	releaseLoan, err := s.locker.Acquire(ctx, shared.LoanLockKey(l.ID))
	if err != nil {
		return decimal.Zero, false, err
	}
	defer releaseLoan()

	done, err := s.repo.HasCausationRun(ctx, l.ID, p.ID, kind)
	if err != nil {
		return decimal.Zero, false, err
	}
	if done {
		return decimal.Zero, true, nil
	}

	buckets, installments, err := s.repo.LoadLedger(ctx, l.ID)
	if err != nil {
		return decimal.Zero, false, err
	}
	lastCaused, err := s.repo.LastCausationAt(ctx, l.ID, kind)
	if err != nil {
		return decimal.Zero, false, err
	}

	amount, _, err := ComputeAccrual(AccrualInput{
		Loan:         l,
		Buckets:      buckets,
		Installments: installments,
		Period:       p,
		Kind:         kind,
		LastCausedAt: lastCaused,
	})
	if err != nil {
		return decimal.Zero, false, err
	}

	// A zero amount still records the marker so the period can close.
	err = s.repo.PostAccrual(ctx, PostAccrualInput{
		LoanID:   l.ID,
		PeriodID: p.ID,
		Kind:     kind,
		Amount:   amount,
		CausedAt: p.EndDate,
	})
	if errors.Is(err, ErrAlreadyCaused) {
		return decimal.Zero, true, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if amount.IsZero() {
		return decimal.Zero, true, nil
	}
	return amount, false, nil
}
