package allocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/observability"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

// BucketChange carries the new paid amount for one bucket.
type BucketChange struct {
	BucketID int64
	Paid     decimal.Decimal
}

// StatusChange carries a recomputed installment status.
type StatusChange struct {
	InstallmentID int64
	Status        loan.InstallmentStatus
}

// Repository abstracts the persistence the engine drives. Persist applies the
// whole mutation set in one transaction, or none of it.
type Repository interface {
	LoadLoan(ctx context.Context, loanID int64) (loan.Loan, error)
	LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error)
	Persist(ctx context.Context, event loan.PaymentEvent, changes []BucketChange, statuses []StatusChange, creditBalance decimal.Decimal) error
}

// Service applies payment events to loans.
type Service struct {
	repo    Repository
	locker  *shared.Locker
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the allocation service.
func NewService(repo Repository, locker *shared.Locker, logger *slog.Logger) *Service {
	return &Service{repo: repo, locker: locker, logger: logger, now: time.Now}
}

// WithMetrics attaches allocation counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Apply consumes one payment event. The event is validated before any state
// is touched, the distribution is computed on copies, and the mutation set is
// persisted atomically, so a failure leaves no partial effect. Duplicate
// event ids are rejected by the repository's uniqueness guard, which makes a
// retried submission safe.
func (s *Service) Apply(ctx context.Context, event loan.PaymentEvent) (Result, error) {
	if err := event.Validate(); err != nil {
		return Result{}, err
	}

	release, err := s.locker.Acquire(ctx, shared.LoanLockKey(event.LoanID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	l, err := s.repo.LoadLoan(ctx, event.LoanID)
	if err != nil {
		return Result{}, err
	}
	if l.Status != loan.StatusActive {
		return Result{}, loan.ErrLoanNotActive
	}

	buckets, installments, err := s.repo.LoadLedger(ctx, event.LoanID)
	if err != nil {
		return Result{}, err
	}

	result, err := Allocate(event.Amount, buckets)
	if err != nil {
		return Result{}, err
	}

	changes, err := bucketChanges(event.LoanID, buckets, result.Lines)
	if err != nil {
		return Result{}, err
	}
	statuses := recomputeStatuses(buckets, installments, changes, s.now())

	credit := l.CreditBalance.Add(result.Credit)
	if err := s.repo.Persist(ctx, event, changes, statuses, credit); err != nil {
		return Result{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveAllocation(event.Amount.InexactFloat64())
	}
	if s.logger != nil {
		s.logger.Info("payment allocated",
			slog.Int64("loan_id", event.LoanID),
			slog.String("event_id", event.ID.String()),
			slog.String("amount", event.Amount.StringFixed(2)),
			slog.String("credit", result.Credit.StringFixed(2)),
			slog.Int("buckets", len(result.Lines)))
	}
	return result, nil
}

// bucketChanges folds allocation lines into new paid amounts, guarding the
// paid <= accrued invariant once more on the final values.
func bucketChanges(loanID int64, buckets []loan.ObligationBucket, lines []Line) ([]BucketChange, error) {
	byID := make(map[int64]loan.ObligationBucket, len(buckets))
	for _, b := range buckets {
		byID[b.ID] = b
	}
	changes := make([]BucketChange, 0, len(lines))
	for _, line := range lines {
		b := byID[line.BucketID]
		paid := b.Paid.Add(line.Amount)
		if paid.GreaterThan(b.Accrued) {
			return nil, &loan.InvariantError{
				LoanID:  loanID,
				Kind:    b.Kind,
				Accrued: b.Accrued,
				Paid:    paid,
				Detail:  "paid would exceed accrued",
			}
		}
		byID[line.BucketID] = loan.ObligationBucket{
			ID: b.ID, LoanID: b.LoanID, Kind: b.Kind,
			PeriodID: b.PeriodID, InstallmentSeq: b.InstallmentSeq,
			Accrued: b.Accrued, Paid: paid,
		}
		changes = append(changes, BucketChange{BucketID: line.BucketID, Paid: paid})
	}
	return changes, nil
}

// recomputeStatuses derives the post-allocation status of every installment
// from its principal bucket outstanding.
func recomputeStatuses(buckets []loan.ObligationBucket, installments []loan.Installment, changes []BucketChange, now time.Time) []StatusChange {
	paidByID := make(map[int64]decimal.Decimal, len(changes))
	for _, c := range changes {
		paidByID[c.BucketID] = c.Paid
	}
	outstandingBySeq := make(map[int]decimal.Decimal, len(installments))
	for _, b := range buckets {
		if b.Kind != loan.KindPrincipal {
			continue
		}
		paid := b.Paid
		if p, ok := paidByID[b.ID]; ok {
			paid = p
		}
		outstandingBySeq[b.InstallmentSeq] = b.Accrued.Sub(paid)
	}

	var statuses []StatusChange
	for _, inst := range installments {
		outstanding, ok := outstandingBySeq[inst.Seq]
		if !ok {
			continue
		}
		next := loan.RecomputeInstallmentStatus(inst, outstanding, now)
		if next != inst.Status {
			statuses = append(statuses, StatusChange{InstallmentID: inst.ID, Status: next})
		}
	}
	return statuses
}
