package causation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
)

const moneyScale = 2

var daysPerYear = decimal.NewFromInt(365)

// AccrualInput bundles the loan state needed to size one accrual line.
type AccrualInput struct {
	Loan         loan.Loan
	Buckets      []loan.ObligationBucket
	Installments []loan.Installment
	Period       period.Period
	Kind         loan.BucketKind
	LastCausedAt *time.Time
}

// ComputeAccrual sizes the accrual for one loan, period, and kind. Accrual
// covers the day slice (from, period end], where from is the latest of the
// last causation date, the day before the period start, and the origination
// date. Pure: no side effects.
//
// Late interest accrues on overdue principal only; a loan current on its
// payments yields a zero amount and is skipped by the run. This pauses late
// interest for the current period only, it does not reverse prior accruals.
func ComputeAccrual(in AccrualInput) (decimal.Decimal, int, error) {
	rate, err := annualRateFor(in.Loan, in.Kind)
	if err != nil {
		return decimal.Zero, 0, err
	}

	var base decimal.Decimal
	switch in.Kind {
	case loan.KindLateInterest:
		base = loan.OverduePrincipal(in.Buckets, in.Installments, in.Period.EndDate)
	default:
		base = loan.OutstandingPrincipal(in.Buckets)
	}
	if !base.IsPositive() {
		return decimal.Zero, 0, nil
	}

	from := in.Period.StartDate.AddDate(0, 0, -1)
	if in.Loan.OriginationDate.After(from) {
		from = in.Loan.OriginationDate
	}
	if in.LastCausedAt != nil && in.LastCausedAt.After(from) {
		from = *in.LastCausedAt
	}
	days := calendar.DaysBetween(from, in.Period.EndDate)
	if days <= 0 {
		return decimal.Zero, 0, nil
	}

	daily := rate.Div(daysPerYear)
	amount := base.Mul(daily).Mul(decimal.NewFromInt(int64(days))).Round(moneyScale)
	return amount, days, nil
}

func annualRateFor(l loan.Loan, kind loan.BucketKind) (decimal.Decimal, error) {
	switch kind {
	case loan.KindCurrentInterest:
		return l.AnnualRate, nil
	case loan.KindLateInterest:
		if l.LateAnnualRate == nil {
			return decimal.Zero, ErrMissingRateConfig
		}
		return *l.LateAnnualRate, nil
	case loan.KindInsurance:
		if l.InsuranceRate == nil {
			return decimal.Zero, ErrMissingRateConfig
		}
		return *l.InsuranceRate, nil
	default:
		return decimal.Zero, ErrInvalidKind
	}
}
