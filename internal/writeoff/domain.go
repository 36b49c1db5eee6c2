// Package writeoff implements the write-off workflow: a case moves through
// PROPOSED, REVIEWED and EXECUTED, with REJECTED as the terminal refusal.
package writeoff

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State enumerates case states.
type State string

const (
	// StateProposed is the initial state after Propose.
	StateProposed State = "PROPOSED"
	// StateReviewed means a reviewer approved the proposal.
	StateReviewed State = "REVIEWED"
	// StateRejected is terminal; the case is closed without effect.
	StateRejected State = "REJECTED"
	// StateExecuted is terminal; the loan has been written off.
	StateExecuted State = "EXECUTED"
)

var (
	// ErrCaseNotFound indicates an unknown case id.
	ErrCaseNotFound = errors.New("writeoff: case not found")
	// ErrLoanNotEligible indicates the loan is not active or already has an
	// open case.
	ErrLoanNotEligible = errors.New("writeoff: loan not eligible")
	// ErrInvalidStateTransition indicates an action not allowed from the
	// case's current state.
	ErrInvalidStateTransition = errors.New("writeoff: invalid state transition")
)

// Decision is the reviewer verdict.
type Decision string

const (
	// DecisionApprove moves a proposed case to REVIEWED.
	DecisionApprove Decision = "APPROVE"
	// DecisionReject closes the case as REJECTED.
	DecisionReject Decision = "REJECT"
)

// Case is one write-off proposal for a loan.
type Case struct {
	ID         int64
	Ref        uuid.UUID
	LoanID     int64
	Settlement decimal.Decimal
	State      State
	ProposedBy int64
	ReviewedBy *int64
	ExecutedBy *int64
	Note       string
	ProposedAt time.Time
	ReviewedAt *time.Time
	ExecutedAt *time.Time
}

// Open reports whether the case still blocks a new proposal on the loan.
func (c Case) Open() bool {
	return c.State == StateProposed || c.State == StateReviewed
}
