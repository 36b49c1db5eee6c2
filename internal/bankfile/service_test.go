package bankfile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-credit/meridian-credit/internal/allocation"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/shared"
)

type memBank struct {
	settlements []Line
	loanIDs     map[string]int64
}

func (r *memBank) ListSettlements(context.Context) ([]Line, error) {
	return r.settlements, nil
}

func (r *memBank) FindLoanIDByNumber(_ context.Context, number string) (int64, error) {
	id, ok := r.loanIDs[number]
	if !ok {
		return 0, loan.ErrLoanNotFound
	}
	return id, nil
}

type memAllocation struct {
	loans   map[int64]loan.Loan
	buckets map[int64][]loan.ObligationBucket
	applied map[int64]decimal.Decimal
}

func (r *memAllocation) LoadLoan(_ context.Context, loanID int64) (loan.Loan, error) {
	l, ok := r.loans[loanID]
	if !ok {
		return loan.Loan{}, loan.ErrLoanNotFound
	}
	return l, nil
}

func (r *memAllocation) LoadLedger(_ context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error) {
	return r.buckets[loanID], nil, nil
}

func (r *memAllocation) Persist(_ context.Context, event loan.PaymentEvent, _ []allocation.BucketChange, _ []allocation.StatusChange, _ decimal.Decimal) error {
	if r.applied == nil {
		r.applied = make(map[int64]decimal.Decimal)
	}
	r.applied[event.LoanID] = r.applied[event.LoanID].Add(event.Amount)
	return nil
}

func TestBuildFeed(t *testing.T) {
	repo := &memBank{settlements: []Line{
		{LoanNumber: "LN-0001", Amount: decimal.RequireFromString("1500.00")},
	}}
	svc := NewService(repo, nil, nil)

	feed, err := svc.BuildFeed(context.Background(), time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, feed.Lines, 1)
	require.Equal(t, "1500.00", feed.Total().StringFixed(2))
}

func TestImportAppliesAndIsolatesFailures(t *testing.T) {
	bank := &memBank{loanIDs: map[string]int64{"LN-0001": 1, "LN-0002": 2}}
	ledger := &memAllocation{
		loans: map[int64]loan.Loan{
			1: {ID: 1, Status: loan.StatusActive},
			2: {ID: 2, Status: loan.StatusWrittenOff},
		},
		buckets: map[int64][]loan.ObligationBucket{
			1: {{ID: 1, LoanID: 1, Kind: loan.KindPrincipal, Accrued: decimal.RequireFromString("5000"), Paid: decimal.Zero}},
		},
	}
	alloc := allocation.NewService(ledger, shared.NewLocker(nil, 0), nil)
	svc := NewService(bank, alloc, nil)

	input := "H;20250731;3\n" +
		"D;LN-0001;1500.00;20250730\n" +
		"D;LN-0002;200.00;20250730\n" +
		"D;LN-9999;50.00;20250730\n" +
		"T;1750.00;1,750.00\n"

	summary, err := svc.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Applied)
	require.Len(t, summary.Failures, 2)
	require.Equal(t, "LN-0002", summary.Failures[0].LoanNumber)
	require.Equal(t, "LN-9999", summary.Failures[1].LoanNumber)
	require.Equal(t, "1500", ledger.applied[1].String())
}

func TestImportAbortsOnMalformedFile(t *testing.T) {
	bank := &memBank{loanIDs: map[string]int64{}}
	svc := NewService(bank, nil, nil)

	_, err := svc.Import(context.Background(), strings.NewReader("D;LN-0001;oops;20250730\n"))
	require.Error(t, err)
}
