// Package causation accrues current interest, late interest, and insurance
// premiums onto loan obligation buckets, once per (loan, period, kind).
package causation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// RunInput identifies one causation run.
type RunInput struct {
	PeriodID int64
	Kind     loan.BucketKind
}

// Validate rejects malformed run requests.
func (in RunInput) Validate() error {
	if in.PeriodID == 0 {
		return errors.New("causation: period required")
	}
	for _, kind := range loan.AccrualKinds {
		if in.Kind == kind {
			return nil
		}
	}
	return ErrInvalidKind
}

// RunException records one loan that failed during a run. The run itself
// completes for the remaining portfolio.
type RunException struct {
	LoanID int64
	Reason string
}

// RunSummary reports the outcome of a causation run.
type RunSummary struct {
	PeriodID     int64
	Kind         loan.BucketKind
	Processed    int
	Skipped      int
	TotalAccrued decimal.Decimal
	Exceptions   []RunException
	StartedAt    time.Time
	FinishedAt   time.Time
}

// PostAccrualInput carries one accrual posting. A zero amount records only
// the causation marker, which period close still requires.
type PostAccrualInput struct {
	LoanID   int64
	PeriodID int64
	Kind     loan.BucketKind
	Amount   decimal.Decimal
	CausedAt time.Time
}

var (
	// ErrInvalidKind rejects kinds outside the accrual set.
	ErrInvalidKind = errors.New("causation: invalid accrual kind")
	// ErrAlreadyCaused signals the (loan, period, kind) marker already exists.
	ErrAlreadyCaused = errors.New("causation: already caused")
	// ErrMissingRateConfig occurs when a loan lacks the rate for the kind.
	ErrMissingRateConfig = errors.New("causation: missing rate configuration")
)
