package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
)

func monthlyTerms(principal, rate string, termCount int, financing Financing) Terms {
	return Terms{
		Principal:  decimal.RequireFromString(principal),
		AnnualRate: decimal.RequireFromString(rate),
		TermCount:  termCount,
		Frequency: calendar.DueDatePolicy{
			Kind:      calendar.PolicyMonthlyCalendar,
			AnchorDay: 15,
		},
		Financing:   financing,
		Origination: time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Adjustment:  calendar.AdjustNone,
	}
}

func TestBuildDecliningBalance(t *testing.T) {
	installments, err := Build(monthlyTerms("1000000", "0.24", 12, FinancingDecliningBalance))
	require.NoError(t, err)
	require.Len(t, installments, 12)

	// 24% annual over monthly periods is 2% per period: the first installment
	// carries 20,000 of interest on the full principal.
	require.Equal(t, "20000.00", installments[0].Interest.StringFixed(2))

	// Principal portions sum exactly to the original principal.
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Principal)
	}
	require.True(t, total.Equal(decimal.RequireFromString("1000000")), "principal sum = %s", total)

	// The periodic payment is constant except possibly the final installment.
	payment := installments[0].Principal.Add(installments[0].Interest)
	for _, inst := range installments[1 : len(installments)-1] {
		require.True(t, inst.Principal.Add(inst.Interest).Equal(payment),
			"installment %d payment drifted", inst.Seq)
	}

	// Interest declines as the balance amortizes.
	for i := 1; i < len(installments); i++ {
		require.True(t, installments[i].Interest.LessThan(installments[i-1].Interest),
			"interest did not decline at seq %d", installments[i].Seq)
	}
}

func TestBuildDecliningBalanceRoundingAbsorbedByFinal(t *testing.T) {
	// A principal that does not divide evenly forces per-row rounding.
	installments, err := Build(monthlyTerms("999999.99", "0.17", 7, FinancingDecliningBalance))
	require.NoError(t, err)

	total := decimal.Zero
	for _, inst := range installments {
		require.True(t, inst.Principal.Equal(inst.Principal.Round(2)), "principal not at currency scale")
		total = total.Add(inst.Principal)
	}
	require.True(t, total.Equal(decimal.RequireFromString("999999.99")), "principal sum = %s", total)
}

func TestBuildFlat(t *testing.T) {
	installments, err := Build(monthlyTerms("1200", "0.12", 12, FinancingFlat))
	require.NoError(t, err)
	require.Len(t, installments, 12)

	// Flat interest is a fixed fraction of the original principal every period.
	for _, inst := range installments {
		require.Equal(t, "12.00", inst.Interest.StringFixed(2))
	}
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Principal)
	}
	require.True(t, total.Equal(decimal.RequireFromString("1200")))
}

func TestBuildZeroRate(t *testing.T) {
	installments, err := Build(monthlyTerms("1000", "0", 4, FinancingDecliningBalance))
	require.NoError(t, err)
	for _, inst := range installments {
		require.Equal(t, "250.00", inst.Principal.StringFixed(2))
		require.True(t, inst.Interest.IsZero())
	}
}

func TestBuildDueDates(t *testing.T) {
	installments, err := Build(monthlyTerms("1000", "0.12", 3, FinancingFlat))
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
	require.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), installments[1].DueDate)
	require.Equal(t, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC), installments[2].DueDate)
	for _, inst := range installments {
		require.Equal(t, loan.InstallmentPending, inst.Status)
	}
}

func TestBuildBackwardAdjustmentStaysInsideDueMonth(t *testing.T) {
	terms := Terms{
		Principal:  decimal.RequireFromString("3000"),
		AnnualRate: decimal.RequireFromString("0.12"),
		TermCount:  3,
		Frequency: calendar.DueDatePolicy{
			Kind:      calendar.PolicyMonthlyCalendar,
			AnchorDay: 1,
		},
		Financing:   FinancingFlat,
		Origination: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		Adjustment:  calendar.AdjustBackward,
	}
	installments, err := Build(terms)
	require.NoError(t, err)

	// Weekday anchors are untouched.
	require.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
	require.Equal(t, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), installments[1].DueDate)

	// 2024-06-01 is a Saturday; shifting backward would land in May, so the
	// date falls forward to Monday June 3 instead.
	require.Equal(t, time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), installments[2].DueDate)
}

func TestBuildBackwardAdjustmentMidMonth(t *testing.T) {
	terms := monthlyTerms("3000", "0.12", 5, FinancingFlat)
	terms.Origination = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	terms.Adjustment = calendar.AdjustBackward
	installments, err := Build(terms)
	require.NoError(t, err)

	// 2024-06-15 is a Saturday with room inside its month: backward to Friday.
	require.Equal(t, time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC), installments[4].DueDate)
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Terms)
		wantErr error
	}{
		{"zero principal", func(tm *Terms) { tm.Principal = decimal.Zero }, ErrInvalidPrincipal},
		{"negative rate", func(tm *Terms) { tm.AnnualRate = decimal.RequireFromString("-0.01") }, ErrInvalidRate},
		{"zero term", func(tm *Terms) { tm.TermCount = 0 }, ErrInvalidTerm},
		{"bad financing", func(tm *Terms) { tm.Financing = "BALLOON" }, ErrInvalidFinancing},
		{"bad policy", func(tm *Terms) { tm.Frequency = calendar.DueDatePolicy{Kind: "WEEKLY"} }, calendar.ErrInvalidPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := monthlyTerms("1000", "0.1", 6, FinancingFlat)
			tc.mutate(&terms)
			_, err := Build(terms)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPrincipalBuckets(t *testing.T) {
	installments, err := Build(monthlyTerms("900", "0.1", 3, FinancingFlat))
	require.NoError(t, err)
	buckets := PrincipalBuckets(42, installments)
	require.Len(t, buckets, 3)
	for i, b := range buckets {
		require.Equal(t, int64(42), b.LoanID)
		require.Equal(t, loan.KindPrincipal, b.Kind)
		require.Equal(t, installments[i].Seq, b.InstallmentSeq)
		require.True(t, b.Accrued.Equal(installments[i].Principal))
		require.True(t, b.Paid.IsZero())
	}
}
