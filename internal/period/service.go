package period

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// Repository abstracts period persistence.
type Repository interface {
	CreatePeriod(ctx context.Context, p Period) (Period, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetPeriodByMonth(ctx context.Context, year int, month time.Month) (Period, error)
	ListActiveLoanIDs(ctx context.Context) ([]int64, error)
	ListMarkers(ctx context.Context, periodID int64) ([]Marker, error)
	ClosePeriod(ctx context.Context, periodID int64, closedAt time.Time) error
}

// Service closes accounting periods once causation is complete.
type Service struct {
	repo   Repository
	locker *shared.Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the period service.
func NewService(repo Repository, locker *shared.Locker, logger *slog.Logger) *Service {
	return &Service{repo: repo, locker: locker, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens the accounting period for a calendar month. The bounds are
// derived, never supplied, so a period always spans its exact month.
func (s *Service) Create(ctx context.Context, year int, month time.Month) (Period, error) {
	if year < 1900 || month < time.January || month > time.December {
		return Period{}, ErrInvalidMonth
	}
	start, end := calendar.PeriodBounds(year, month)
	p, err := s.repo.CreatePeriod(ctx, Period{
		Year:      year,
		Month:     month,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return Period{}, err
	}
	if s.logger != nil {
		s.logger.Info("period created",
			slog.Int64("period_id", p.ID),
			slog.Int("year", year),
			slog.Int("month", int(month)))
	}
	return p, nil
}

// Get returns a period by id.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, id)
}

// GetByMonth resolves a period from its year and month.
func (s *Service) GetByMonth(ctx context.Context, year int, month time.Month) (Period, error) {
	return s.repo.GetPeriodByMonth(ctx, year, month)
}

// Close transitions the period to closed after verifying that every active
// loan carries causation markers for all accrual kinds. The transition is
// terminal: no further causation may post against the period.
func (s *Service) Close(ctx context.Context, periodID int64) (Period, error) {
	release, err := s.locker.Acquire(ctx, shared.PeriodLockKey(periodID))
	if err != nil {
		return Period{}, err
	}
	defer release()

	p, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if p.IsClosed {
		return Period{}, ErrPeriodAlreadyClosed
	}

	missing, err := s.missingCausation(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if len(missing) > 0 {
		return Period{}, &IncompleteCausationError{PeriodID: periodID, Missing: missing}
	}

	closedAt := s.now()
	if err := s.repo.ClosePeriod(ctx, periodID, closedAt); err != nil {
		if errors.Is(err, ErrPeriodAlreadyClosed) {
			return Period{}, ErrPeriodAlreadyClosed
		}
		return Period{}, err
	}
	if s.logger != nil {
		s.logger.Info("period closed", slog.Int64("period_id", periodID))
	}
	p.IsClosed = true
	p.ClosedAt = &closedAt
	return p, nil
}

// CausationStatus reports the (loan, kind) pairs still blocking a close, so
// the back office can see what remains before attempting one.
func (s *Service) CausationStatus(ctx context.Context, periodID int64) ([]MissingCausation, error) {
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.missingCausation(ctx, periodID)
}

// missingCausation collects every (loan, kind) pair without a marker.
func (s *Service) missingCausation(ctx context.Context, periodID int64) ([]MissingCausation, error) {
	loanIDs, err := s.repo.ListActiveLoanIDs(ctx)
	if err != nil {
		return nil, err
	}
	markers, err := s.repo.ListMarkers(ctx, periodID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]map[loan.BucketKind]bool, len(loanIDs))
	for _, m := range markers {
		if seen[m.LoanID] == nil {
			seen[m.LoanID] = make(map[loan.BucketKind]bool, len(loan.AccrualKinds))
		}
		seen[m.LoanID][m.Kind] = true
	}
	var missing []MissingCausation
	for _, id := range loanIDs {
		for _, kind := range loan.AccrualKinds {
			if !seen[id][kind] {
				missing = append(missing, MissingCausation{LoanID: id, Kind: kind})
			}
		}
	}
	sortMissing(missing)
	return missing, nil
}
