// Package schedule builds amortization schedules for simulated and newly
// originated loans. The builder is pure: identical terms always produce an
// identical schedule.
package schedule

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// Financing selects the interest computation model.
type Financing string

const (
	// FinancingDecliningBalance computes a level annuity payment with
	// interest charged on the remaining balance.
	FinancingDecliningBalance Financing = "DECLINING_BALANCE"
	// FinancingFlat charges interest as a fixed fraction of the original
	// principal on every installment.
	FinancingFlat Financing = "FLAT"
)

// MoneyScale is the minor-unit precision every installment amount is rounded to.
const MoneyScale = 2

const daysPerYear = 365

var (
	// ErrInvalidPrincipal rejects non-positive principal.
	ErrInvalidPrincipal = errors.New("schedule: principal must be positive")
	// ErrInvalidRate rejects negative annual rates.
	ErrInvalidRate = errors.New("schedule: rate must not be negative")
	// ErrInvalidTerm rejects non-positive installment counts.
	ErrInvalidTerm = errors.New("schedule: term must be positive")
	// ErrInvalidFinancing rejects unknown financing types.
	ErrInvalidFinancing = errors.New("schedule: unknown financing type")
)

// Terms captures everything needed to build a schedule.
type Terms struct {
	Principal   decimal.Decimal
	AnnualRate  decimal.Decimal
	TermCount   int
	Frequency   calendar.DueDatePolicy
	Financing   Financing
	Origination time.Time
	Adjustment  calendar.WeekendAdjustment
}

// Validate applies the input checks before any computation.
func (t Terms) Validate() error {
	if !t.Principal.IsPositive() {
		return ErrInvalidPrincipal
	}
	if t.AnnualRate.IsNegative() {
		return ErrInvalidRate
	}
	if t.TermCount <= 0 {
		return ErrInvalidTerm
	}
	if t.Financing != FinancingDecliningBalance && t.Financing != FinancingFlat {
		return ErrInvalidFinancing
	}
	return t.Frequency.Validate()
}

// Build produces the ordered installment sequence for the given terms. The
// final installment absorbs the cumulative principal rounding remainder so
// the scheduled principal sums exactly to the original principal.
func Build(terms Terms) ([]loan.Installment, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	rate := periodRate(terms.AnnualRate, terms.Frequency)
	var installments []loan.Installment
	switch terms.Financing {
	case FinancingDecliningBalance:
		installments = buildDecliningBalance(terms, rate)
	case FinancingFlat:
		installments = buildFlat(terms, rate)
	}

	for i := range installments {
		due := calendar.ResolveDueDate(terms.Origination, terms.Frequency, installments[i].Seq)
		// The boundary is the due date's own accounting period: a backward
		// weekend shift must never leave the month the installment falls in.
		periodStart, _ := calendar.PeriodBounds(due.Year(), due.Month())
		installments[i].DueDate = calendar.AdjustBusinessDay(due, terms.Adjustment, periodStart)
		installments[i].Status = loan.InstallmentPending
	}
	return installments, nil
}

// periodRate converts a nominal annual rate to a per-period rate. Calendar
// frequencies divide the year evenly; day-interval frequencies use actual
// elapsed days over a 365-day year.
func periodRate(annual decimal.Decimal, freq calendar.DueDatePolicy) decimal.Decimal {
	switch freq.Kind {
	case calendar.PolicyMonthlyCalendar:
		return annual.Div(decimal.NewFromInt(12))
	case calendar.PolicySemiMonthly:
		return annual.Div(decimal.NewFromInt(24))
	default:
		days := decimal.NewFromInt(int64(freq.IntervalDays))
		return annual.Mul(days).Div(decimal.NewFromInt(daysPerYear))
	}
}

func buildDecliningBalance(terms Terms, rate decimal.Decimal) []loan.Installment {
	n := terms.TermCount
	payment := annuityPayment(terms.Principal, rate, n)

	installments := make([]loan.Installment, 0, n)
	remaining := terms.Principal
	allocated := decimal.Zero
	for seq := 1; seq <= n; seq++ {
		interest := remaining.Mul(rate).Round(MoneyScale)
		principal := payment.Sub(interest).Round(MoneyScale)
		if seq == n {
			// Absorb the rounding remainder so the schedule sums exactly.
			principal = terms.Principal.Sub(allocated)
			interest = remaining.Mul(rate).Round(MoneyScale)
		}
		remaining = remaining.Sub(principal)
		allocated = allocated.Add(principal)
		installments = append(installments, loan.Installment{
			Seq:       seq,
			Principal: principal,
			Interest:  interest,
		})
	}
	return installments
}

func buildFlat(terms Terms, rate decimal.Decimal) []loan.Installment {
	n := terms.TermCount
	count := decimal.NewFromInt(int64(n))
	principalPortion := terms.Principal.Div(count).Round(MoneyScale)
	interestPortion := terms.Principal.Mul(rate).Round(MoneyScale)

	installments := make([]loan.Installment, 0, n)
	allocated := decimal.Zero
	for seq := 1; seq <= n; seq++ {
		principal := principalPortion
		if seq == n {
			principal = terms.Principal.Sub(allocated)
		}
		allocated = allocated.Add(principal)
		installments = append(installments, loan.Installment{
			Seq:       seq,
			Principal: principal,
			Interest:  interestPortion,
		})
	}
	return installments
}

// annuityPayment computes the level periodic payment
// P * r * (1+r)^n / ((1+r)^n - 1), or an even split when the rate is zero.
func annuityPayment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n))).Round(MoneyScale)
	}
	one := decimal.NewFromInt(1)
	factor := one.Add(rate).Pow(decimal.NewFromInt(int64(n)))
	numerator := principal.Mul(rate).Mul(factor)
	denominator := factor.Sub(one)
	return numerator.Div(denominator).Round(MoneyScale)
}

// PrincipalBuckets derives the origination obligation buckets, one principal
// bucket per installment.
func PrincipalBuckets(loanID int64, installments []loan.Installment) []loan.ObligationBucket {
	buckets := make([]loan.ObligationBucket, 0, len(installments))
	for _, inst := range installments {
		buckets = append(buckets, loan.ObligationBucket{
			LoanID:         loanID,
			Kind:           loan.KindPrincipal,
			InstallmentSeq: inst.Seq,
			Accrued:        inst.Principal,
			Paid:           decimal.Zero,
		})
	}
	return buckets
}
