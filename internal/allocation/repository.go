package allocation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
)

// PostgresRepository persists allocation results.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	loans *loan.PostgresRepository
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, loans: loan.NewPostgresRepository(pool)}
}

// LoadLoan delegates to the loan repository.
func (r *PostgresRepository) LoadLoan(ctx context.Context, loanID int64) (loan.Loan, error) {
	return r.loans.GetLoan(ctx, loanID)
}

// LoadLedger delegates to the loan repository.
func (r *PostgresRepository) LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error) {
	return r.loans.LoadLedger(ctx, loanID)
}

// Persist applies the payment event and all derived mutations in a single
// transaction. The payment event id is unique, so a replayed event fails with
// ErrDuplicatePaymentEvent before any bucket is touched.
func (r *PostgresRepository) Persist(ctx context.Context, event loan.PaymentEvent, changes []BucketChange, statuses []StatusChange, creditBalance decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO payment_events (id, loan_id, amount, payment_date, movement_type, source, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			event.ID, event.LoanID, event.Amount, event.PaymentDate, event.MovementType, string(event.Source))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return loan.ErrDuplicatePaymentEvent
			}
			return err
		}
		for _, c := range changes {
			tag, err := tx.Exec(ctx, `UPDATE obligation_buckets SET paid=$2 WHERE id=$1 AND paid<=$2`, c.BucketID, c.Paid)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrAllocationInvariant
			}
		}
		for _, st := range statuses {
			if _, err := tx.Exec(ctx, `UPDATE installments SET status=$2 WHERE id=$1`, st.InstallmentID, string(st.Status)); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE loans SET credit_balance=$2, updated_at=NOW() WHERE id=$1`, event.LoanID, creditBalance)
		return err
	})
}
