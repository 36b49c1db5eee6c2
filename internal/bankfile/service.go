package bankfile

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/meridian-credit/meridian-credit/internal/allocation"
)

// Repository abstracts the reads the bank-file service needs.
type Repository interface {
	// ListSettlements returns one line per active loan with outstanding
	// obligations, the amount being its total outstanding.
	ListSettlements(ctx context.Context) ([]Line, error)
	FindLoanIDByNumber(ctx context.Context, number string) (int64, error)
}

// ImportFailure records one payment instruction that could not be applied.
type ImportFailure struct {
	LoanNumber string
	Reason     string
}

// ImportSummary is the outcome of one inbound bank-file import.
type ImportSummary struct {
	Applied  int
	Failures []ImportFailure
}

// Service renders the outgoing feed and imports inbound payment files.
type Service struct {
	repo       Repository
	allocation *allocation.Service
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the bank-file service.
func NewService(repo Repository, alloc *allocation.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, allocation: alloc, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BuildFeed assembles the settlement feed for the given value date.
func (s *Service) BuildFeed(ctx context.Context, valueDate time.Time) (Feed, error) {
	lines, err := s.repo.ListSettlements(ctx)
	if err != nil {
		return Feed{}, err
	}
	return Feed{ValueDate: valueDate, Lines: lines}, nil
}

// Import parses an inbound payment file and applies every instruction through
// the allocation engine. A failed instruction is recorded and skipped; the
// rest of the file still applies, mirroring how causation isolates per-loan
// failures.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	payments, err := ParsePayments(r)
	if err != nil {
		return ImportSummary{}, err
	}
	var summary ImportSummary
	for _, p := range payments {
		loanID, err := s.repo.FindLoanIDByNumber(ctx, p.LoanNumber)
		if err != nil {
			summary.Failures = append(summary.Failures, ImportFailure{
				LoanNumber: p.LoanNumber,
				Reason:     err.Error(),
			})
			continue
		}
		if _, err := s.allocation.Apply(ctx, p.Event(loanID)); err != nil {
			summary.Failures = append(summary.Failures, ImportFailure{
				LoanNumber: p.LoanNumber,
				Reason:     err.Error(),
			})
			continue
		}
		summary.Applied++
	}
	if s.logger != nil {
		s.logger.Info("bank file imported",
			slog.Int("applied", summary.Applied),
			slog.Int("failures", len(summary.Failures)))
	}
	return summary, nil
}
