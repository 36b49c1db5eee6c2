// Package period manages accounting periods and causation markers. Closing a
// period is a one-way transition; corrections to a closed period are expressed
// as new entries in the next open period.
package period

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// Period is a monthly accounting window.
type Period struct {
	ID        int64
	Year      int
	Month     time.Month
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	ClosedAt  *time.Time
}

// Contains reports whether the date falls inside the period bounds.
func (p Period) Contains(d time.Time) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// Marker records that causation ran for a (loan, period, kind) combination.
// Its uniqueness is what makes causation retry-safe.
type Marker struct {
	LoanID   int64
	PeriodID int64
	Kind     loan.BucketKind
	CausedAt time.Time
}

// MissingCausation identifies one (loan, kind) pair still lacking a marker.
type MissingCausation struct {
	LoanID int64
	Kind   loan.BucketKind
}

// IncompleteCausationError refuses a close while causation markers are
// missing; it lists every missing pair rather than failing on the first.
type IncompleteCausationError struct {
	PeriodID int64
	Missing  []MissingCausation
}

// Error implements the error interface.
func (e *IncompleteCausationError) Error() string {
	pairs := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		pairs = append(pairs, fmt.Sprintf("loan %d/%s", m.LoanID, m.Kind))
	}
	return fmt.Sprintf("period %d: causation incomplete: %s", e.PeriodID, strings.Join(pairs, ", "))
}

// sortMissing keeps the error output deterministic.
func sortMissing(missing []MissingCausation) {
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].LoanID != missing[j].LoanID {
			return missing[i].LoanID < missing[j].LoanID
		}
		return missing[i].Kind < missing[j].Kind
	})
}

var (
	// ErrPeriodNotFound occurs when a period lookup fails.
	ErrPeriodNotFound = errors.New("period: not found")
	// ErrPeriodClosed occurs when posting is attempted against a closed period.
	ErrPeriodClosed = errors.New("period: closed")
	// ErrPeriodAlreadyClosed occurs when closing a period twice.
	ErrPeriodAlreadyClosed = errors.New("period: already closed")
	// ErrPeriodExists occurs when creating a period for a month that has one.
	ErrPeriodExists = errors.New("period: already exists")
	// ErrInvalidMonth rejects a period outside the calendar.
	ErrInvalidMonth = errors.New("period: invalid year or month")
)
