package causation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
)

func junePeriod() period.Period {
	return period.Period{
		ID:        6,
		Year:      2025,
		Month:     time.June,
		StartDate: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC),
	}
}

func testLoan(rate string) loan.Loan {
	return loan.Loan{
		ID:              1,
		AnnualRate:      decimal.RequireFromString(rate),
		OriginationDate: time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		Status:          loan.StatusActive,
	}
}

func principalBucket(outstanding string, seq int) loan.ObligationBucket {
	return loan.ObligationBucket{
		ID:             int64(seq),
		LoanID:         1,
		Kind:           loan.KindPrincipal,
		InstallmentSeq: seq,
		Accrued:        decimal.RequireFromString(outstanding),
		Paid:           decimal.Zero,
	}
}

func TestComputeAccrualFullMonth(t *testing.T) {
	// 36.5% annual over a 365-day year is exactly 0.1% per day.
	amount, days, err := ComputeAccrual(AccrualInput{
		Loan:    testLoan("0.365"),
		Buckets: []loan.ObligationBucket{principalBucket("100000", 1)},
		Period:  junePeriod(),
		Kind:    loan.KindCurrentInterest,
	})
	require.NoError(t, err)
	require.Equal(t, 30, days)
	require.Equal(t, "3000.00", amount.StringFixed(2))
}

func TestComputeAccrualMidMonthOrigination(t *testing.T) {
	l := testLoan("0.365")
	l.OriginationDate = time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	amount, days, err := ComputeAccrual(AccrualInput{
		Loan:    l,
		Buckets: []loan.ObligationBucket{principalBucket("100000", 1)},
		Period:  junePeriod(),
		Kind:    loan.KindCurrentInterest,
	})
	require.NoError(t, err)
	require.Equal(t, 15, days)
	require.Equal(t, "1500.00", amount.StringFixed(2))
}

func TestComputeAccrualHonoursLastCausation(t *testing.T) {
	// A marker from the 20th leaves only the remaining ten days to accrue.
	lastCaused := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	amount, days, err := ComputeAccrual(AccrualInput{
		Loan:         testLoan("0.365"),
		Buckets:      []loan.ObligationBucket{principalBucket("100000", 1)},
		Period:       junePeriod(),
		Kind:         loan.KindCurrentInterest,
		LastCausedAt: &lastCaused,
	})
	require.NoError(t, err)
	require.Equal(t, 10, days)
	require.Equal(t, "1000.00", amount.StringFixed(2))
}

func TestComputeAccrualLateInterestRequiresOverdue(t *testing.T) {
	lateRate := decimal.RequireFromString("0.73")
	l := testLoan("0.365")
	l.LateAnnualRate = &lateRate

	// No installment past due: nothing accrues.
	amount, _, err := ComputeAccrual(AccrualInput{
		Loan:    l,
		Buckets: []loan.ObligationBucket{principalBucket("100000", 1)},
		Installments: []loan.Installment{{
			LoanID: 1, Seq: 1,
			DueDate:   time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
			Principal: decimal.RequireFromString("100000"),
		}},
		Period: junePeriod(),
		Kind:   loan.KindLateInterest,
	})
	require.NoError(t, err)
	require.True(t, amount.IsZero())

	// An overdue installment accrues at the late rate on its outstanding only.
	amount, days, err := ComputeAccrual(AccrualInput{
		Loan: l,
		Buckets: []loan.ObligationBucket{
			principalBucket("50000", 1),
			principalBucket("50000", 2),
		},
		Installments: []loan.Installment{
			{LoanID: 1, Seq: 1, DueDate: time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC), Principal: decimal.RequireFromString("50000")},
			{LoanID: 1, Seq: 2, DueDate: time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC), Principal: decimal.RequireFromString("50000")},
		},
		Period: junePeriod(),
		Kind:   loan.KindLateInterest,
	})
	require.NoError(t, err)
	require.Equal(t, 30, days)
	// 50,000 x 0.2% daily x 30 days.
	require.Equal(t, "3000.00", amount.StringFixed(2))
}

func TestComputeAccrualMissingRateConfig(t *testing.T) {
	_, _, err := ComputeAccrual(AccrualInput{
		Loan:    testLoan("0.365"),
		Buckets: []loan.ObligationBucket{principalBucket("100000", 1)},
		Period:  junePeriod(),
		Kind:    loan.KindInsurance,
	})
	require.ErrorIs(t, err, ErrMissingRateConfig)
}

func TestComputeAccrualSettledLoanAccruesNothing(t *testing.T) {
	paid := principalBucket("100000", 1)
	paid.Paid = paid.Accrued
	amount, _, err := ComputeAccrual(AccrualInput{
		Loan:    testLoan("0.365"),
		Buckets: []loan.ObligationBucket{paid},
		Period:  junePeriod(),
		Kind:    loan.KindCurrentInterest,
	})
	require.NoError(t, err)
	require.True(t, amount.IsZero())
}
