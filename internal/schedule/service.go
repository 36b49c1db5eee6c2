package schedule

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// ErrNumberRequired rejects origination without a loan number.
var ErrNumberRequired = errors.New("schedule: loan number required")

// OriginateInput carries everything needed to open a loan.
type OriginateInput struct {
	Number         string
	Terms          Terms
	LateAnnualRate *decimal.Decimal
	InsuranceRate  *decimal.Decimal
}

// Validate applies input checks before any computation.
func (in OriginateInput) Validate() error {
	if in.Number == "" {
		return ErrNumberRequired
	}
	if in.LateAnnualRate != nil && in.LateAnnualRate.IsNegative() {
		return ErrInvalidRate
	}
	if in.InsuranceRate != nil && in.InsuranceRate.IsNegative() {
		return ErrInvalidRate
	}
	return in.Terms.Validate()
}

// Repository abstracts loan creation.
type Repository interface {
	CreateLoan(ctx context.Context, l loan.Loan, installments []loan.Installment, buckets []loan.ObligationBucket) (loan.Loan, error)
}

// Service originates loans and simulates schedules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the schedule service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Simulate builds a schedule without persisting anything.
func (s *Service) Simulate(terms Terms) ([]loan.Installment, error) {
	return Build(terms)
}

// Originate opens a loan: the schedule is built from the terms and persisted
// together with the loan row and its principal buckets.
func (s *Service) Originate(ctx context.Context, in OriginateInput) (loan.Loan, []loan.Installment, error) {
	if err := in.Validate(); err != nil {
		return loan.Loan{}, nil, err
	}
	installments, err := Build(in.Terms)
	if err != nil {
		return loan.Loan{}, nil, err
	}
	l := loan.Loan{
		Number:          in.Number,
		Principal:       in.Terms.Principal,
		AnnualRate:      in.Terms.AnnualRate,
		LateAnnualRate:  in.LateAnnualRate,
		InsuranceRate:   in.InsuranceRate,
		TermCount:       in.Terms.TermCount,
		Frequency:       in.Terms.Frequency,
		Adjustment:      in.Terms.Adjustment,
		OriginationDate: in.Terms.Origination,
	}
	buckets := PrincipalBuckets(0, installments)
	created, err := s.repo.CreateLoan(ctx, l, installments, buckets)
	if err != nil {
		return loan.Loan{}, nil, err
	}
	if s.logger != nil {
		s.logger.Info("loan originated",
			slog.Int64("loan_id", created.ID),
			slog.String("number", created.Number),
			slog.String("principal", created.Principal.StringFixed(2)),
			slog.Int("installments", len(installments)))
	}
	return created, installments, nil
}
