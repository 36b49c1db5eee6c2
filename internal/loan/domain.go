// Package loan holds the shared domain model of the servicing engine: loans,
// installments, obligation buckets, and payment events.
package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
)

// Status enumerates loan lifecycle values.
type Status string

const (
	// StatusActive indicates the loan is being serviced.
	StatusActive Status = "ACTIVE"
	// StatusSettled indicates all obligations have been paid in full.
	StatusSettled Status = "SETTLED"
	// StatusWrittenOff indicates the balance was removed via write-off.
	StatusWrittenOff Status = "WRITTEN_OFF"
	// StatusCancelled indicates the loan was voided before servicing.
	StatusCancelled Status = "CANCELLED"
)

// InstallmentStatus enumerates schedule entry states.
type InstallmentStatus string

const (
	// InstallmentPending indicates nothing has been paid yet.
	InstallmentPending InstallmentStatus = "PENDING"
	// InstallmentPartiallyPaid indicates principal reduced but outstanding.
	InstallmentPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	// InstallmentPaid indicates the principal outstanding reached zero.
	InstallmentPaid InstallmentStatus = "PAID"
	// InstallmentLate indicates outstanding principal past the due date.
	InstallmentLate InstallmentStatus = "LATE"
)

// BucketKind enumerates typed accrual lines on a loan.
type BucketKind string

const (
	// KindPrincipal tracks scheduled principal per installment.
	KindPrincipal BucketKind = "PRINCIPAL"
	// KindCurrentInterest tracks scheduled interest accrued per period.
	KindCurrentInterest BucketKind = "CURRENT_INTEREST"
	// KindLateInterest tracks interest accrued on overdue principal.
	KindLateInterest BucketKind = "LATE_INTEREST"
	// KindInsurance tracks insurance premium accrual.
	KindInsurance BucketKind = "INSURANCE"
)

// AccrualKinds lists the kinds written by causation runs, in the order the
// period closer checks them.
var AccrualKinds = []BucketKind{KindCurrentInterest, KindLateInterest, KindInsurance}

// PaymentSource enumerates where a payment event originated.
type PaymentSource string

const (
	// SourceTeller marks an over-the-counter payment.
	SourceTeller PaymentSource = "TELLER"
	// SourcePayroll marks a payroll deduction batch entry.
	SourcePayroll PaymentSource = "PAYROLL"
	// SourceBankFile marks an entry parsed from a bank settlement file.
	SourceBankFile PaymentSource = "BANK_FILE"
)

// Loan is the aggregate root for servicing. The outstanding balance is always
// derived from the obligation buckets, never stored as the sole truth.
type Loan struct {
	ID              int64
	Number          string
	Principal       decimal.Decimal
	AnnualRate      decimal.Decimal
	LateAnnualRate  *decimal.Decimal
	InsuranceRate   *decimal.Decimal
	TermCount       int
	Frequency       calendar.DueDatePolicy
	Adjustment      calendar.WeekendAdjustment
	OriginationDate time.Time
	Status          Status
	CreditBalance   decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Installment is one entry of the amortization schedule. Immutable after
// origination except for its status.
type Installment struct {
	ID        int64
	LoanID    int64
	Seq       int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Status    InstallmentStatus
}

// ObligationBucket is a typed accrued/paid balance line. Causation is the only
// writer of Accrued; allocation is the only writer of Paid.
type ObligationBucket struct {
	ID             int64
	LoanID         int64
	Kind           BucketKind
	PeriodID       int64
	InstallmentSeq int
	Accrued        decimal.Decimal
	Paid           decimal.Decimal
}

// Outstanding returns accrued minus paid.
func (b ObligationBucket) Outstanding() decimal.Decimal {
	return b.Accrued.Sub(b.Paid)
}

// PaymentEvent is an immutable normalized payment record, consumed exactly
// once by the allocation engine.
type PaymentEvent struct {
	ID           uuid.UUID
	LoanID       int64
	Amount       decimal.Decimal
	PaymentDate  time.Time
	MovementType string
	Source       PaymentSource
	RecordedAt   time.Time
}

// Validate rejects malformed payment events before any state is touched.
func (e PaymentEvent) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("loan: payment event id required")
	}
	if e.LoanID == 0 {
		return errors.New("loan: payment event loan required")
	}
	if !e.Amount.IsPositive() {
		return errors.New("loan: payment amount must be positive")
	}
	return nil
}

// OutstandingPrincipal sums principal bucket outstandings.
func OutstandingPrincipal(buckets []ObligationBucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		if b.Kind == KindPrincipal {
			total = total.Add(b.Outstanding())
		}
	}
	return total
}

// OverduePrincipal sums principal outstanding across installments whose due
// date has passed as of the given time.
func OverduePrincipal(buckets []ObligationBucket, installments []Installment, asOf time.Time) decimal.Decimal {
	dueBySeq := make(map[int]time.Time, len(installments))
	for _, inst := range installments {
		dueBySeq[inst.Seq] = inst.DueDate
	}
	total := decimal.Zero
	for _, b := range buckets {
		if b.Kind != KindPrincipal {
			continue
		}
		due, ok := dueBySeq[b.InstallmentSeq]
		if !ok || !due.Before(asOf) {
			continue
		}
		if out := b.Outstanding(); out.IsPositive() {
			total = total.Add(out)
		}
	}
	return total
}

// TotalOutstanding sums outstanding across every bucket.
func TotalOutstanding(buckets []ObligationBucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.Outstanding())
	}
	return total
}

// RecomputeInstallmentStatus derives the status of an installment from its
// principal bucket outstanding and the due date.
func RecomputeInstallmentStatus(inst Installment, principalOutstanding decimal.Decimal, now time.Time) InstallmentStatus {
	switch {
	case principalOutstanding.IsZero():
		return InstallmentPaid
	case inst.DueDate.Before(now):
		return InstallmentLate
	case principalOutstanding.LessThan(inst.Principal):
		return InstallmentPartiallyPaid
	default:
		return InstallmentPending
	}
}

// InvariantError reports a per-loan financial invariant breach with enough
// context for manual reconciliation. It is never corrected silently.
type InvariantError struct {
	LoanID  int64
	Kind    BucketKind
	Accrued decimal.Decimal
	Paid    decimal.Decimal
	Detail  string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("loan %d: %s bucket invariant: %s (accrued=%s paid=%s)",
		e.LoanID, e.Kind, e.Detail, e.Accrued.StringFixed(2), e.Paid.StringFixed(2))
}

var (
	// ErrLoanNotFound occurs when a loan lookup fails.
	ErrLoanNotFound = errors.New("loan: not found")
	// ErrLoanNotActive occurs when an operation requires an active loan.
	ErrLoanNotActive = errors.New("loan: not active")
	// ErrDuplicatePaymentEvent occurs when an event id was already consumed.
	ErrDuplicatePaymentEvent = errors.New("loan: payment event already consumed")
)
