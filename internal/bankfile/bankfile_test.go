package bankfile

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

func TestFeedRender(t *testing.T) {
	feed := Feed{
		ValueDate: time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC),
		Lines: []Line{
			{LoanNumber: "LN-0001", Amount: decimal.RequireFromString("1234567.80")},
			{LoanNumber: "LN-0002", Amount: decimal.RequireFromString("500.20")},
		},
	}

	var buf strings.Builder
	require.NoError(t, feed.Render(&buf))

	want := "H;20250731;2\n" +
		"D;LN-0001;1234567.80\n" +
		"D;LN-0002;500.20\n" +
		"T;1235068.00;1,235,068.00\n"
	require.Equal(t, want, buf.String())
}

func TestFeedRenderEmpty(t *testing.T) {
	feed := Feed{ValueDate: time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)}
	var buf strings.Builder
	require.NoError(t, feed.Render(&buf))
	require.Equal(t, "H;20250731;0\nT;0.00;0.00\n", buf.String())
}

func TestParsePayments(t *testing.T) {
	input := "H;20250731;2\n" +
		"D;LN-0001;1500.00;20250730\n" +
		"\n" +
		"D;LN-0002;250.50;20250731\n" +
		"T;1750.50;1,750.50\n"

	payments, err := ParsePayments(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, "LN-0001", payments[0].LoanNumber)
	require.Equal(t, "1500.00", payments[0].Amount.StringFixed(2))
	require.Equal(t, time.Date(2025, time.July, 30, 0, 0, 0, 0, time.UTC), payments[0].PaymentDate)
	require.Equal(t, "LN-0002", payments[1].LoanNumber)
}

func TestParsePaymentsMalformedRow(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"missing field", "D;LN-0001;100.00\n", "line 1"},
		{"bad amount", "H;20250731;1\nD;LN-0001;abc;20250730\n", "line 2"},
		{"negative amount", "D;LN-0001;-5.00;20250730\n", "must be positive"},
		{"bad date", "D;LN-0001;100.00;31-07-2025\n", "bad date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayments(strings.NewReader(tc.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPaymentEvent(t *testing.T) {
	p := Payment{
		LoanNumber:  "LN-0001",
		Amount:      decimal.RequireFromString("100.00"),
		PaymentDate: time.Date(2025, time.July, 30, 0, 0, 0, 0, time.UTC),
	}
	event := p.Event(7)
	require.NoError(t, event.Validate())
	require.Equal(t, int64(7), event.LoanID)
	require.Equal(t, loan.SourceBankFile, event.Source)
	require.Equal(t, "BANK_SETTLEMENT", event.MovementType)

	// Every conversion mints a distinct event id.
	require.NotEqual(t, event.ID, p.Event(7).ID)
}
