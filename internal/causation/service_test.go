package causation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

type markerKey struct {
	loanID   int64
	periodID int64
	kind     loan.BucketKind
}

type memRepo struct {
	mu           sync.Mutex
	period       period.Period
	loans        []loan.Loan
	buckets      map[int64][]loan.ObligationBucket
	installments map[int64][]loan.Installment
	markers      map[markerKey]time.Time
	posted       []PostAccrualInput
	summaries    []RunSummary
	failPostFor  map[int64]error
}

func newMemRepo(p period.Period) *memRepo {
	return &memRepo{
		period:       p,
		buckets:      make(map[int64][]loan.ObligationBucket),
		installments: make(map[int64][]loan.Installment),
		markers:      make(map[markerKey]time.Time),
		failPostFor:  make(map[int64]error),
	}
}

func (r *memRepo) addLoan(l loan.Loan, buckets ...loan.ObligationBucket) {
	r.loans = append(r.loans, l)
	r.buckets[l.ID] = buckets
}

func (r *memRepo) GetPeriod(_ context.Context, id int64) (period.Period, error) {
	if id != r.period.ID {
		return period.Period{}, period.ErrPeriodNotFound
	}
	return r.period, nil
}

func (r *memRepo) ListActiveLoans(context.Context) ([]loan.Loan, error) {
	return r.loans, nil
}

func (r *memRepo) LoadLedger(_ context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buckets[loanID], r.installments[loanID], nil
}

func (r *memRepo) HasCausationRun(_ context.Context, loanID, periodID int64, kind loan.BucketKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[markerKey{loanID, periodID, kind}]
	return ok, nil
}

func (r *memRepo) LastCausationAt(_ context.Context, loanID int64, kind loan.BucketKind) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	for key, at := range r.markers {
		if key.loanID != loanID || key.kind != kind {
			continue
		}
		at := at
		if latest == nil || at.After(*latest) {
			latest = &at
		}
	}
	return latest, nil
}

func (r *memRepo) PostAccrual(_ context.Context, in PostAccrualInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failPostFor[in.LoanID]; err != nil {
		return err
	}
	key := markerKey{in.LoanID, in.PeriodID, in.Kind}
	if _, ok := r.markers[key]; ok {
		return ErrAlreadyCaused
	}
	r.markers[key] = in.CausedAt
	r.posted = append(r.posted, in)
	if in.Amount.IsPositive() {
		r.buckets[in.LoanID] = append(r.buckets[in.LoanID], loan.ObligationBucket{
			LoanID:   in.LoanID,
			Kind:     in.Kind,
			PeriodID: in.PeriodID,
			Accrued:  in.Amount,
		})
	}
	return nil
}

func (r *memRepo) SaveSummary(_ context.Context, summary RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	return nil
}

func (r *memRepo) ListSummaries(_ context.Context, periodID int64) ([]RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RunSummary
	for _, s := range r.summaries {
		if s.PeriodID == periodID {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, shared.NewLocker(nil, 0), nil, 2)
}

func activeLoan(id int64, rate string) loan.Loan {
	l := testLoan(rate)
	l.ID = id
	return l
}

func bucketFor(loanID int64, outstanding string) loan.ObligationBucket {
	b := principalBucket(outstanding, 1)
	b.LoanID = loanID
	return b
}

func TestRunAccruesPortfolio(t *testing.T) {
	repo := newMemRepo(junePeriod())
	repo.addLoan(activeLoan(1, "0.365"), bucketFor(1, "100000"))
	repo.addLoan(activeLoan(2, "0.365"), bucketFor(2, "200000"))

	summary, err := newTestService(repo).Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 0, summary.Skipped)
	require.Empty(t, summary.Exceptions)
	require.Equal(t, "9000.00", summary.TotalAccrued.StringFixed(2))
	require.Len(t, repo.posted, 2)
}

func TestRunIsIdempotent(t *testing.T) {
	repo := newMemRepo(junePeriod())
	repo.addLoan(activeLoan(1, "0.365"), bucketFor(1, "100000"))
	svc := newTestService(repo)

	first, err := svc.Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := svc.Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	require.Equal(t, 1, second.Skipped)
	require.Len(t, repo.posted, 1, "rerun must not post a second accrual")
}

func TestRunIsolatesLoanFailures(t *testing.T) {
	repo := newMemRepo(junePeriod())
	repo.addLoan(activeLoan(1, "0.365"), bucketFor(1, "100000"))
	repo.addLoan(activeLoan(2, "0.365"), bucketFor(2, "100000"))
	repo.failPostFor[2] = errors.New("connection reset")
	svc := newTestService(repo)

	summary, err := svc.Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Exceptions, 1)
	require.Equal(t, int64(2), summary.Exceptions[0].LoanID)

	// The failed loan holds no marker, so a rerun picks it up.
	delete(repo.failPostFor, 2)
	retry, err := svc.Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 1, retry.Processed)
	require.Equal(t, 1, retry.Skipped)
}

func TestRunZeroAmountStillMarks(t *testing.T) {
	repo := newMemRepo(junePeriod())
	settled := bucketFor(1, "100000")
	settled.Paid = settled.Accrued
	repo.addLoan(activeLoan(1, "0.365"), settled)

	summary, err := newTestService(repo).Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)

	done, err := repo.HasCausationRun(context.Background(), 1, 6, loan.KindCurrentInterest)
	require.NoError(t, err)
	require.True(t, done, "zero accrual must still record the marker")
}

func TestRunRejectsClosedPeriod(t *testing.T) {
	p := junePeriod()
	p.IsClosed = true
	repo := newMemRepo(p)
	repo.addLoan(activeLoan(1, "0.365"), bucketFor(1, "100000"))

	_, err := newTestService(repo).Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.ErrorIs(t, err, period.ErrPeriodClosed)
}

func TestRunRejectsInvalidKind(t *testing.T) {
	repo := newMemRepo(junePeriod())
	_, err := newTestService(repo).Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindPrincipal})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestRunPersistsSummary(t *testing.T) {
	repo := newMemRepo(junePeriod())
	repo.addLoan(activeLoan(1, "0.365"), bucketFor(1, "100000"))
	svc := newTestService(repo)

	_, err := svc.Run(context.Background(), RunInput{PeriodID: 6, Kind: loan.KindCurrentInterest})
	require.NoError(t, err)

	runs, err := svc.ListRuns(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, loan.KindCurrentInterest, runs[0].Kind)
	require.Equal(t, 1, runs[0].Processed)
}
