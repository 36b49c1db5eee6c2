package writeoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

const approvalModule = "writeoff"

// Repository abstracts case persistence.
type Repository interface {
	GetLoan(ctx context.Context, loanID int64) (loan.Loan, error)
	LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error)
	OpenCase(ctx context.Context, loanID int64) (*Case, error)
	GetCase(ctx context.Context, caseID int64) (Case, error)
	CreateCase(ctx context.Context, c Case) (Case, error)
	Review(ctx context.Context, caseID int64, from, to State, reviewerID int64, at time.Time) error
	Execute(ctx context.Context, c Case, executorID int64, at time.Time) error
}

// ApprovalTrail records case decisions; satisfied by shared.ApprovalRecorder.
type ApprovalTrail interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the write-off state machine.
type Service struct {
	repo      Repository
	locker    *shared.Locker
	approvals ApprovalTrail
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the write-off service.
func NewService(repo Repository, locker *shared.Locker, approvals ApprovalTrail, logger *slog.Logger) *Service {
	return &Service{repo: repo, locker: locker, approvals: approvals, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Propose opens a case for an active loan. The settlement amount is the sum
// of all bucket outstandings at proposal time; it is frozen on the case so the
// reviewer sees exactly what was proposed.
func (s *Service) Propose(ctx context.Context, loanID, actorID int64, note string) (Case, error) {
	release, err := s.locker.Acquire(ctx, shared.LoanLockKey(loanID))
	if err != nil {
		return Case{}, err
	}
	defer release()

	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return Case{}, err
	}
	if l.Status != loan.StatusActive {
		return Case{}, fmt.Errorf("%w: loan %d is %s", ErrLoanNotEligible, loanID, l.Status)
	}
	if open, err := s.repo.OpenCase(ctx, loanID); err != nil {
		return Case{}, err
	} else if open != nil {
		return Case{}, fmt.Errorf("%w: loan %d already has case %d", ErrLoanNotEligible, loanID, open.ID)
	}

	buckets, _, err := s.repo.LoadLedger(ctx, loanID)
	if err != nil {
		return Case{}, err
	}
	settlement := decimal.Zero
	for _, b := range buckets {
		settlement = settlement.Add(b.Outstanding())
	}

	c := Case{
		Ref:        uuid.New(),
		LoanID:     loanID,
		Settlement: settlement,
		State:      StateProposed,
		ProposedBy: actorID,
		Note:       note,
		ProposedAt: s.now(),
	}
	c, err = s.repo.CreateCase(ctx, c)
	if err != nil {
		return Case{}, err
	}
	s.record(ctx, c.Ref, actorID, shared.ApprovalPropose, note)
	if s.logger != nil {
		s.logger.Info("write-off proposed",
			slog.Int64("loan_id", loanID),
			slog.Int64("case_id", c.ID),
			slog.String("settlement", settlement.StringFixed(2)))
	}
	return c, nil
}

// Review records the reviewer verdict. A proposed case may be approved or
// rejected; a reviewed case may still be rejected any time before execution,
// which releases the loan for a fresh proposal.
func (s *Service) Review(ctx context.Context, caseID int64, decision Decision, reviewerID int64, note string) (Case, error) {
	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return Case{}, err
	}

	next := StateReviewed
	action := shared.ApprovalApprove
	if decision == DecisionReject {
		next = StateRejected
		action = shared.ApprovalReject
	}
	switch {
	case c.State == StateProposed:
	case c.State == StateReviewed && decision == DecisionReject:
	default:
		return Case{}, fmt.Errorf("%w: cannot %s case in state %s", ErrInvalidStateTransition, decision, c.State)
	}
	at := s.now()
	if err := s.repo.Review(ctx, caseID, c.State, next, reviewerID, at); err != nil {
		return Case{}, err
	}
	c.State = next
	c.ReviewedBy = &reviewerID
	c.ReviewedAt = &at
	s.record(ctx, c.Ref, reviewerID, action, note)
	if s.logger != nil {
		s.logger.Info("write-off reviewed",
			slog.Int64("case_id", caseID),
			slog.String("state", string(next)))
	}
	return c, nil
}

// Execute performs the write-off for a reviewed case: all bucket outstandings
// are zeroed and the loan moves to WRITTEN_OFF, in one transaction. The
// transition is irreversible.
func (s *Service) Execute(ctx context.Context, caseID, actorID int64) (Case, error) {
	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return Case{}, err
	}
	if c.State != StateReviewed {
		return Case{}, fmt.Errorf("%w: cannot execute case in state %s", ErrInvalidStateTransition, c.State)
	}

	release, err := s.locker.Acquire(ctx, shared.LoanLockKey(c.LoanID))
	if err != nil {
		return Case{}, err
	}
	defer release()

	at := s.now()
	if err := s.repo.Execute(ctx, c, actorID, at); err != nil {
		return Case{}, err
	}
	c.State = StateExecuted
	c.ExecutedBy = &actorID
	c.ExecutedAt = &at
	s.record(ctx, c.Ref, actorID, shared.ApprovalExecute, "")
	if s.logger != nil {
		s.logger.Info("write-off executed",
			slog.Int64("case_id", caseID),
			slog.Int64("loan_id", c.LoanID),
			slog.String("settlement", c.Settlement.StringFixed(2)))
	}
	return c, nil
}

func (s *Service) record(ctx context.Context, ref uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   ref,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("approval trail write failed", slog.Any("error", err))
	}
}
