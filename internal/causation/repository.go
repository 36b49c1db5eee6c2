package causation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/calendar"
	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/period"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
)

// PostgresRepository persists accruals and causation markers.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetPeriod loads the accounting period.
func (r *PostgresRepository) GetPeriod(ctx context.Context, id int64) (period.Period, error) {
	var p period.Period
	var month int
	err := r.pool.QueryRow(ctx, `SELECT id, year, month, start_date, end_date, is_closed, closed_at
FROM accounting_periods WHERE id=$1`, id).Scan(&p.ID, &p.Year, &month, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return period.Period{}, period.ErrPeriodNotFound
		}
		return period.Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

// ListActiveLoans returns every loan in servicing.
func (r *PostgresRepository) ListActiveLoans(ctx context.Context) ([]loan.Loan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, principal, annual_rate, late_annual_rate, insurance_rate,
term_count, frequency_kind, interval_days, anchor_day, adjustment, origination_date, status, credit_balance
FROM loans WHERE status=$1 ORDER BY id`, string(loan.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var loans []loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// LoadLedger loads the obligation buckets and installments of one loan.
func (r *PostgresRepository) LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error) {
	bucketRows, err := r.pool.Query(ctx, `SELECT id, loan_id, kind, period_id, installment_seq, accrued, paid
FROM obligation_buckets WHERE loan_id=$1 ORDER BY id`, loanID)
	if err != nil {
		return nil, nil, err
	}
	defer bucketRows.Close()
	var buckets []loan.ObligationBucket
	for bucketRows.Next() {
		var b loan.ObligationBucket
		var kind string
		if err := bucketRows.Scan(&b.ID, &b.LoanID, &kind, &b.PeriodID, &b.InstallmentSeq, &b.Accrued, &b.Paid); err != nil {
			return nil, nil, err
		}
		b.Kind = loan.BucketKind(kind)
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
	var installments []loan.Installment
	for instRows.Next() {
		var inst loan.Installment
		var status string
		if err := instRows.Scan(&inst.ID, &inst.LoanID, &inst.Seq, &inst.DueDate, &inst.Principal, &inst.Interest, &status); err != nil {
			return nil, nil, err
		}
		inst.Status = loan.InstallmentStatus(status)
		installments = append(installments, inst)
	}
	return buckets, installments, instRows.Err()
}

// HasCausationRun reports whether the marker exists.
func (r *PostgresRepository) HasCausationRun(ctx context.Context, loanID, periodID int64, kind loan.BucketKind) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM causation_markers
WHERE loan_id=$1 AND period_id=$2 AND kind=$3)`, loanID, periodID, string(kind)).Scan(&exists)
	return exists, err
}

// LastCausationAt returns the latest causation date for the loan and kind.
func (r *PostgresRepository) LastCausationAt(ctx context.Context, loanID int64, kind loan.BucketKind) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `SELECT caused_at FROM causation_markers
WHERE loan_id=$1 AND kind=$2 ORDER BY caused_at DESC LIMIT 1`, loanID, string(kind)).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &at, nil
}

// PostAccrual writes the accrual bucket and marker atomically. The marker's
// unique key (loan_id, period_id, kind) is the idempotency guard.
func (r *PostgresRepository) PostAccrual(ctx context.Context, in PostAccrualInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO causation_markers (loan_id, period_id, kind, caused_at)
VALUES ($1, $2, $3, $4)`, in.LoanID, in.PeriodID, string(in.Kind), in.CausedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyCaused
			}
			return err
		}
		if !in.Amount.IsPositive() {
			return nil
		}
		_, err = tx.Exec(ctx, `INSERT INTO obligation_buckets (loan_id, kind, period_id, installment_seq, accrued, paid)
VALUES ($1, $2, $3, 0, $4, 0)`, in.LoanID, string(in.Kind), in.PeriodID, in.Amount)
		return err
	})
}

// SaveSummary persists one run summary. Exceptions are stored as JSON so the
// full reason list survives for the back office.
func (r *PostgresRepository) SaveSummary(ctx context.Context, summary RunSummary) error {
	exceptions, err := json.Marshal(summary.Exceptions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO causation_runs
(period_id, kind, processed, skipped, total_accrued, exceptions, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.PeriodID, string(summary.Kind), summary.Processed, summary.Skipped,
		summary.TotalAccrued, exceptions, summary.StartedAt, summary.FinishedAt)
	return err
}

// ListSummaries returns the run summaries of a period, newest first.
func (r *PostgresRepository) ListSummaries(ctx context.Context, periodID int64) ([]RunSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT period_id, kind, processed, skipped, total_accrued, exceptions, started_at, finished_at
FROM causation_runs WHERE period_id=$1 ORDER BY started_at DESC`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var kind string
		var exceptions []byte
		if err := rows.Scan(&s.PeriodID, &kind, &s.Processed, &s.Skipped, &s.TotalAccrued, &exceptions, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, err
		}
		if len(exceptions) > 0 {
			if err := json.Unmarshal(exceptions, &s.Exceptions); err != nil {
				return nil, err
			}
		}
		s.Kind = loan.BucketKind(kind)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (loan.Loan, error) {
	var l loan.Loan
	var status, freqKind, adjustment string
	var lateRate, insuranceRate *decimal.Decimal
	err := row.Scan(&l.ID, &l.Number, &l.Principal, &l.AnnualRate, &lateRate, &insuranceRate,
		&l.TermCount, &freqKind, &l.Frequency.IntervalDays, &l.Frequency.AnchorDay,
		&adjustment, &l.OriginationDate, &status, &l.CreditBalance)
	if err != nil {
		return loan.Loan{}, err
	}
	l.LateAnnualRate = lateRate
	l.InsuranceRate = insuranceRate
	l.Frequency.Kind = calendar.PolicyKind(freqKind)
	l.Adjustment = calendar.WeekendAdjustment(adjustment)
	l.Status = loan.Status(status)
	return l, nil
}
