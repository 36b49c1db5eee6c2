package statement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuildAggregatesLedger(t *testing.T) {
	l := loan.Loan{
		ID:            1,
		Number:        "LN-0001",
		Status:        loan.StatusActive,
		CreditBalance: money("25"),
	}
	buckets := []loan.ObligationBucket{
		{ID: 1, LoanID: 1, Kind: loan.KindPrincipal, InstallmentSeq: 1, Accrued: money("1000"), Paid: money("1000")},
		{ID: 2, LoanID: 1, Kind: loan.KindPrincipal, InstallmentSeq: 2, Accrued: money("1000"), Paid: money("400")},
		{ID: 3, LoanID: 1, Kind: loan.KindCurrentInterest, PeriodID: 6, Accrued: money("120"), Paid: money("0")},
		{ID: 4, LoanID: 1, Kind: loan.KindLateInterest, PeriodID: 6, Accrued: money("30"), Paid: money("10")},
	}
	installments := []loan.Installment{
		{ID: 10, LoanID: 1, Seq: 1, DueDate: time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC), Principal: money("1000"), Status: loan.InstallmentPaid},
		{ID: 11, LoanID: 1, Seq: 2, DueDate: time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC), Principal: money("1000"), Status: loan.InstallmentLate},
	}
	asOf := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	st := Build(l, buckets, installments, asOf)

	require.Equal(t, "LN-0001", st.Number)
	require.Equal(t, asOf, st.AsOf)
	require.Equal(t, "600.00", st.OutstandingPrincipal.StringFixed(2))
	// Only seq 2 is past due.
	require.Equal(t, "600.00", st.OverduePrincipal.StringFixed(2))
	require.Equal(t, "740.00", st.TotalOutstanding.StringFixed(2))
	require.Equal(t, "25.00", st.CreditBalance.StringFixed(2))

	require.Len(t, st.Buckets, 4)
	require.Equal(t, "600", st.Buckets[1].Outstanding.String())
	require.Len(t, st.Schedule, 2)
	require.Equal(t, loan.InstallmentLate, st.Schedule[1].Status)
}

func TestBuildEmptyLedger(t *testing.T) {
	l := loan.Loan{ID: 2, Number: "LN-0002", Status: loan.StatusSettled, CreditBalance: decimal.Zero}
	st := Build(l, nil, nil, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, st.OutstandingPrincipal.IsZero())
	require.True(t, st.TotalOutstanding.IsZero())
	require.Empty(t, st.Buckets)
	require.Empty(t, st.Schedule)
}
