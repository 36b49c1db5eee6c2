package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/statement"
)

func TestRenderStatementHTML(t *testing.T) {
	st := statement.Statement{
		LoanID: 1,
		Number: "LN-0001",
		Status: loan.StatusActive,
		AsOf:   time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		Buckets: []statement.BucketLine{{
			Kind:        loan.KindCurrentInterest,
			PeriodID:    6,
			Accrued:     decimal.RequireFromString("120"),
			Paid:        decimal.RequireFromString("20"),
			Outstanding: decimal.RequireFromString("100"),
		}},
		Schedule: []statement.ScheduleLine{{
			Seq:       1,
			DueDate:   time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
			Principal: decimal.RequireFromString("1000"),
			Interest:  decimal.RequireFromString("120"),
			Status:    loan.InstallmentPending,
		}},
		OutstandingPrincipal: decimal.RequireFromString("1000"),
		OverduePrincipal:     decimal.Zero,
		TotalOutstanding:     decimal.RequireFromString("1100"),
		CreditBalance:        decimal.Zero,
	}

	html, err := renderStatementHTML(st)
	require.NoError(t, err)
	require.Contains(t, html, "Loan Statement LN-0001")
	require.Contains(t, html, "As of 2025-07-01")
	require.Contains(t, html, "100.00")
	require.Contains(t, html, "2025-07-15")
	require.Contains(t, html, "CURRENT_INTEREST")
}
