// Package statement assembles per-loan balance summaries for report
// renderers. It produces data only; layout belongs to the consumers.
package statement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// BucketLine is the outstanding position of one obligation bucket.
type BucketLine struct {
	Kind           loan.BucketKind
	PeriodID       int64
	InstallmentSeq int
	Accrued        decimal.Decimal
	Paid           decimal.Decimal
	Outstanding    decimal.Decimal
}

// ScheduleLine is one installment row of the statement's schedule view.
type ScheduleLine struct {
	Seq       int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Status    loan.InstallmentStatus
}

// Statement is the full balance summary of one loan at a point in time.
type Statement struct {
	LoanID               int64
	Number               string
	Status               loan.Status
	AsOf                 time.Time
	Buckets              []BucketLine
	Schedule             []ScheduleLine
	OutstandingPrincipal decimal.Decimal
	OverduePrincipal     decimal.Decimal
	TotalOutstanding     decimal.Decimal
	CreditBalance        decimal.Decimal
}

// Build derives a statement from the loan and its ledger. Pure.
func Build(l loan.Loan, buckets []loan.ObligationBucket, installments []loan.Installment, asOf time.Time) Statement {
	st := Statement{
		LoanID:               l.ID,
		Number:               l.Number,
		Status:               l.Status,
		AsOf:                 asOf,
		OutstandingPrincipal: loan.OutstandingPrincipal(buckets),
		OverduePrincipal:     loan.OverduePrincipal(buckets, installments, asOf),
		TotalOutstanding:     loan.TotalOutstanding(buckets),
		CreditBalance:        l.CreditBalance,
	}
	for _, b := range buckets {
		st.Buckets = append(st.Buckets, BucketLine{
			Kind:           b.Kind,
			PeriodID:       b.PeriodID,
			InstallmentSeq: b.InstallmentSeq,
			Accrued:        b.Accrued,
			Paid:           b.Paid,
			Outstanding:    b.Outstanding(),
		})
	}
	for _, inst := range installments {
		st.Schedule = append(st.Schedule, ScheduleLine{
			Seq:       inst.Seq,
			DueDate:   inst.DueDate,
			Principal: inst.Principal,
			Interest:  inst.Interest,
			Status:    inst.Status,
		})
	}
	return st
}

// Repository abstracts the reads the statement service needs.
type Repository interface {
	GetLoan(ctx context.Context, loanID int64) (loan.Loan, error)
	LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error)
}

// Service loads statements on demand.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the statement service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads and builds the statement of one loan.
func (s *Service) Get(ctx context.Context, loanID int64) (Statement, error) {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return Statement{}, err
	}
	buckets, installments, err := s.repo.LoadLedger(ctx, loanID)
	if err != nil {
		return Statement{}, err
	}
	return Build(l, buckets, installments, s.now()), nil
}
