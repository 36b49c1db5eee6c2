package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

func bucket(id int64, kind loan.BucketKind, accrued, paid string) loan.ObligationBucket {
	return loan.ObligationBucket{
		ID:      id,
		LoanID:  1,
		Kind:    kind,
		Accrued: decimal.RequireFromString(accrued),
		Paid:    decimal.RequireFromString(paid),
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAllocatePrecedenceOrder(t *testing.T) {
	late := bucket(1, loan.KindLateInterest, "5000", "0")
	late.PeriodID = 6
	current := bucket(2, loan.KindCurrentInterest, "10000", "0")
	current.PeriodID = 6
	insurance := bucket(3, loan.KindInsurance, "2000", "2000")
	insurance.PeriodID = 6
	principal := bucket(4, loan.KindPrincipal, "50000", "10000")
	principal.InstallmentSeq = 1

	result, err := Allocate(money("50000"), []loan.ObligationBucket{principal, insurance, current, late})
	require.NoError(t, err)
	require.True(t, result.Credit.IsZero())
	require.Len(t, result.Lines, 3, "fully paid insurance must be skipped")

	require.Equal(t, loan.KindLateInterest, result.Lines[0].Kind)
	require.Equal(t, "5000", result.Lines[0].Amount.String())
	require.Equal(t, loan.KindCurrentInterest, result.Lines[1].Kind)
	require.Equal(t, "10000", result.Lines[1].Amount.String())
	require.Equal(t, loan.KindPrincipal, result.Lines[2].Kind)
	require.Equal(t, "35000", result.Lines[2].Amount.String())
}

func TestAllocateConservation(t *testing.T) {
	buckets := []loan.ObligationBucket{
		bucket(1, loan.KindLateInterest, "123.45", "0"),
		bucket(2, loan.KindCurrentInterest, "678.90", "100"),
		bucket(3, loan.KindPrincipal, "10000", "0"),
	}
	amount := money("777.77")
	result, err := Allocate(amount, buckets)
	require.NoError(t, err)

	sum := result.Credit
	for _, line := range result.Lines {
		sum = sum.Add(line.Amount)
	}
	require.True(t, sum.Equal(amount), "lines + credit = %s, want %s", sum, amount)
}

func TestAllocateOldestFirstWithinKind(t *testing.T) {
	older := bucket(1, loan.KindCurrentInterest, "300", "0")
	older.PeriodID = 5
	newer := bucket(2, loan.KindCurrentInterest, "300", "0")
	newer.PeriodID = 6

	result, err := Allocate(money("400"), []loan.ObligationBucket{newer, older})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	require.Equal(t, int64(1), result.Lines[0].BucketID)
	require.Equal(t, "300", result.Lines[0].Amount.String())
	require.Equal(t, int64(2), result.Lines[1].BucketID)
	require.Equal(t, "100", result.Lines[1].Amount.String())
}

func TestAllocatePrincipalByInstallmentOrder(t *testing.T) {
	second := bucket(1, loan.KindPrincipal, "500", "0")
	second.InstallmentSeq = 2
	first := bucket(2, loan.KindPrincipal, "500", "0")
	first.InstallmentSeq = 1

	result, err := Allocate(money("600"), []loan.ObligationBucket{second, first})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	require.Equal(t, int64(2), result.Lines[0].BucketID)
	require.Equal(t, "500", result.Lines[0].Amount.String())
	require.Equal(t, int64(1), result.Lines[1].BucketID)
	require.Equal(t, "100", result.Lines[1].Amount.String())
}

func TestAllocateSurplusBecomesCredit(t *testing.T) {
	buckets := []loan.ObligationBucket{
		bucket(1, loan.KindCurrentInterest, "100", "0"),
		bucket(2, loan.KindPrincipal, "900", "0"),
	}
	result, err := Allocate(money("1500"), buckets)
	require.NoError(t, err)
	require.Equal(t, "500", result.Credit.String())
}

func TestAllocateNegativeOutstandingRejected(t *testing.T) {
	broken := bucket(1, loan.KindPrincipal, "100", "150")
	_, err := Allocate(money("50"), []loan.ObligationBucket{broken})
	require.ErrorIs(t, err, ErrAllocationInvariant)
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	_, err := Allocate(decimal.Zero, nil)
	require.Error(t, err)
	_, err = Allocate(money("-10"), nil)
	require.Error(t, err)
}
