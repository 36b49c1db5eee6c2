// Package bankfile renders the outgoing settlement feed and parses incoming
// bank payment files.
package bankfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

const fieldSeparator = ";"

// Line is one (loan reference, amount) entry of the settlement feed.
type Line struct {
	LoanNumber string
	Amount     decimal.Decimal
}

// Feed is the outgoing settlement feed for one value date.
type Feed struct {
	ValueDate time.Time
	Lines     []Line
}

// Total sums the feed amounts.
func (f Feed) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range f.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Render writes the feed in the bank's delimited format: a header row with the
// value date and line count, one row per loan, and a trailer with the total.
// Amounts in the body are machine-readable; the trailer carries a grouped
// display total for manual reconciliation.
func (f Feed) Render(w io.Writer) error {
	printer := message.NewPrinter(language.English)
	if _, err := fmt.Fprintf(w, "H%s%s%s%d\n",
		fieldSeparator, f.ValueDate.Format("20060102"), fieldSeparator, len(f.Lines)); err != nil {
		return err
	}
	for _, l := range f.Lines {
		if _, err := fmt.Fprintf(w, "D%s%s%s%s\n",
			fieldSeparator, l.LoanNumber, fieldSeparator, l.Amount.StringFixed(2)); err != nil {
			return err
		}
	}
	display := printer.Sprintf("%.2f", f.Total().InexactFloat64())
	_, err := fmt.Fprintf(w, "T%s%s%s%s\n",
		fieldSeparator, f.Total().StringFixed(2), fieldSeparator, display)
	return err
}

// Payment is one inbound payment instruction parsed from a bank file.
type Payment struct {
	LoanNumber  string
	Amount      decimal.Decimal
	PaymentDate time.Time
}

// Event converts the instruction into a payment event for the given loan,
// minting a fresh event id.
func (p Payment) Event(loanID int64) loan.PaymentEvent {
	return loan.PaymentEvent{
		ID:           uuid.New(),
		LoanID:       loanID,
		Amount:       p.Amount,
		PaymentDate:  p.PaymentDate,
		MovementType: "BANK_SETTLEMENT",
		Source:       loan.SourceBankFile,
	}
}

// ParsePayments reads inbound detail rows (D;<loan number>;<amount>;<date>).
// Header and trailer rows are skipped; a malformed detail row aborts the parse
// with its line number so the file can be fixed and resubmitted whole.
func ParsePayments(r io.Reader) ([]Payment, error) {
	scanner := bufio.NewScanner(r)
	var payments []Payment
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || !strings.HasPrefix(row, "D"+fieldSeparator) {
			continue
		}
		fields := strings.Split(row, fieldSeparator)
		if len(fields) != 4 {
			return nil, fmt.Errorf("bankfile: line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		amount, err := decimal.NewFromString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bankfile: line %d: bad amount %q: %w", lineNo, fields[2], err)
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("bankfile: line %d: amount must be positive", lineNo)
		}
		date, err := time.Parse("20060102", fields[3])
		if err != nil {
			return nil, fmt.Errorf("bankfile: line %d: bad date %q: %w", lineNo, fields[3], err)
		}
		payments = append(payments, Payment{
			LoanNumber:  fields[1],
			Amount:      amount,
			PaymentDate: date,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}
