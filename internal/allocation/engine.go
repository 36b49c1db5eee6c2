// Package allocation distributes incoming payments across a loan's obligation
// buckets in a fixed precedence order.
package allocation

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// ErrAllocationInvariant signals an inconsistent ledger (negative outstanding
// or paid exceeding accrued); no buckets are mutated when it is returned.
var ErrAllocationInvariant = errors.New("allocation: invariant violation")

// Line records the amount applied to one bucket.
type Line struct {
	BucketID int64
	Kind     loan.BucketKind
	Amount   decimal.Decimal
}

// Result is the outcome of allocating one payment. The sum of line amounts
// plus Credit always equals the payment amount exactly.
type Result struct {
	Lines  []Line
	Credit decimal.Decimal
}

// kindRank encodes the fixed precedence order: late interest, current
// interest, insurance, then principal.
var kindRank = map[loan.BucketKind]int{
	loan.KindLateInterest:    0,
	loan.KindCurrentInterest: 1,
	loan.KindInsurance:       2,
	loan.KindPrincipal:       3,
}

// Allocate distributes the payment across the buckets. Within a kind, accrual
// buckets are consumed oldest period first and principal buckets oldest
// installment first. A partial payment stops inside a bucket; any surplus
// after all obligations becomes loan credit. Pure: the input slice is not
// mutated.
func Allocate(amount decimal.Decimal, buckets []loan.ObligationBucket) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, errors.New("allocation: amount must be positive")
	}

	ordered := make([]loan.ObligationBucket, len(buckets))
	copy(ordered, buckets)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := kindRank[ordered[i].Kind], kindRank[ordered[j].Kind]
		if ri != rj {
			return ri < rj
		}
		if ordered[i].Kind == loan.KindPrincipal {
			return ordered[i].InstallmentSeq < ordered[j].InstallmentSeq
		}
		return ordered[i].PeriodID < ordered[j].PeriodID
	})

	remaining := amount
	var lines []Line
	for _, b := range ordered {
		outstanding := b.Outstanding()
		if outstanding.IsNegative() {
			return Result{}, ErrAllocationInvariant
		}
		if outstanding.IsZero() {
			continue
		}
		if remaining.IsZero() {
			break
		}
		applied := decimal.Min(remaining, outstanding)
		lines = append(lines, Line{BucketID: b.ID, Kind: b.Kind, Amount: applied})
		remaining = remaining.Sub(applied)
	}
	return Result{Lines: lines, Credit: remaining}, nil
}
