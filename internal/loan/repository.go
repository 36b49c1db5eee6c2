package loan

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
)

// PostgresRepository persists loans and their ledgers.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateLoan originates a loan with its schedule and principal buckets in one
// transaction.
func (r *PostgresRepository) CreateLoan(ctx context.Context, l Loan, installments []Installment, buckets []ObligationBucket) (Loan, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO loans
(number, principal, annual_rate, late_annual_rate, insurance_rate, term_count,
 frequency_kind, interval_days, anchor_day, adjustment, origination_date, status, credit_balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, NOW(), NOW())
RETURNING id, created_at, updated_at`,
			l.Number, l.Principal, l.AnnualRate, l.LateAnnualRate, l.InsuranceRate, l.TermCount,
			string(l.Frequency.Kind), l.Frequency.IntervalDays, l.Frequency.AnchorDay,
			string(l.Adjustment), l.OriginationDate, string(StatusActive)).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return err
		}
		for _, inst := range installments {
			_, err := tx.Exec(ctx, `INSERT INTO installments (loan_id, seq, due_date, principal, interest, status)
VALUES ($1, $2, $3, $4, $5, $6)`, l.ID, inst.Seq, inst.DueDate, inst.Principal, inst.Interest, string(inst.Status))
			if err != nil {
				return err
			}
		}
		for _, b := range buckets {
			_, err := tx.Exec(ctx, `INSERT INTO obligation_buckets (loan_id, kind, period_id, installment_seq, accrued, paid)
VALUES ($1, $2, $3, $4, $5, 0)`, l.ID, string(b.Kind), b.PeriodID, b.InstallmentSeq, b.Accrued)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	l.Status = StatusActive
	l.CreditBalance = decimal.Zero
	return l, nil
}

// GetLoan loads a loan by id.
func (r *PostgresRepository) GetLoan(ctx context.Context, id int64) (Loan, error) {
	var l Loan
	var status, freqKind, adjustment string
	var lateRate, insuranceRate *decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT id, number, principal, annual_rate, late_annual_rate, insurance_rate,
term_count, frequency_kind, interval_days, anchor_day, adjustment, origination_date, status, credit_balance, created_at, updated_at
FROM loans WHERE id=$1`, id).Scan(&l.ID, &l.Number, &l.Principal, &l.AnnualRate, &lateRate, &insuranceRate,
		&l.TermCount, &freqKind, &l.Frequency.IntervalDays, &l.Frequency.AnchorDay,
		&adjustment, &l.OriginationDate, &status, &l.CreditBalance, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, err
	}
	l.LateAnnualRate = lateRate
	l.InsuranceRate = insuranceRate
	l.Frequency.Kind = calendar.PolicyKind(freqKind)
	l.Adjustment = calendar.WeekendAdjustment(adjustment)
	l.Status = Status(status)
	return l, nil
}

// LoadLedger loads the obligation buckets and installments of one loan.
func (r *PostgresRepository) LoadLedger(ctx context.Context, loanID int64) ([]ObligationBucket, []Installment, error) {
	bucketRows, err := r.pool.Query(ctx, `SELECT id, loan_id, kind, period_id, installment_seq, accrued, paid
FROM obligation_buckets WHERE loan_id=$1 ORDER BY id`, loanID)
	if err != nil {
		return nil, nil, err
	}
	defer bucketRows.Close()
	var buckets []ObligationBucket
	for bucketRows.Next() {
		var b ObligationBucket
		var kind string
		if err := bucketRows.Scan(&b.ID, &b.LoanID, &kind, &b.PeriodID, &b.InstallmentSeq, &b.Accrued, &b.Paid); err != nil {
			return nil, nil, err
		}
		b.Kind = BucketKind(kind)
		buckets = append(buckets, b)
	}
	if err := bucketRows.Err(); err != nil {
		return nil, nil, err
	}

	instRows, err := r.pool.Query(ctx, `SELECT id, loan_id, seq, due_date, principal, interest, status
FROM installments WHERE loan_id=$1 ORDER BY seq`, loanID)
	if err != nil {
		return nil, nil, err
	}
	defer instRows.Close()
	var installments []Installment
	for instRows.Next() {
		var inst Installment
		var status string
		if err := instRows.Scan(&inst.ID, &inst.LoanID, &inst.Seq, &inst.DueDate, &inst.Principal, &inst.Interest, &status); err != nil {
			return nil, nil, err
		}
		inst.Status = InstallmentStatus(status)
		installments = append(installments, inst)
	}
	return buckets, installments, instRows.Err()
}

// ListPaymentEvents returns the consumed payment events of a loan, newest
// first.
func (r *PostgresRepository) ListPaymentEvents(ctx context.Context, loanID int64, limit int) ([]PaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, loan_id, amount, payment_date, movement_type, source, recorded_at
FROM payment_events WHERE loan_id=$1 ORDER BY recorded_at DESC LIMIT $2`, loanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []PaymentEvent
	for rows.Next() {
		var e PaymentEvent
		var source string
		if err := rows.Scan(&e.ID, &e.LoanID, &e.Amount, &e.PaymentDate, &e.MovementType, &source, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Source = PaymentSource(source)
		events = append(events, e)
	}
	return events, rows.Err()
}
