package writeoff

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-credit/meridian-credit/internal/loan"
	"github.com/meridian-credit/meridian-credit/internal/platform/db"
)

// PostgresRepository persists write-off cases.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	loans *loan.PostgresRepository
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, loans: loan.NewPostgresRepository(pool)}
}

// GetLoan delegates to the loan repository.
func (r *PostgresRepository) GetLoan(ctx context.Context, loanID int64) (loan.Loan, error) {
	return r.loans.GetLoan(ctx, loanID)
}

// LoadLedger delegates to the loan repository.
func (r *PostgresRepository) LoadLedger(ctx context.Context, loanID int64) ([]loan.ObligationBucket, []loan.Installment, error) {
	return r.loans.LoadLedger(ctx, loanID)
}

// OpenCase returns the open case for a loan, or nil when there is none.
func (r *PostgresRepository) OpenCase(ctx context.Context, loanID int64) (*Case, error) {
	c, err := r.scanCase(r.pool.QueryRow(ctx, selectCase+` WHERE loan_id=$1 AND state IN ('PROPOSED','REVIEWED')`, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetCase loads a case by id.
func (r *PostgresRepository) GetCase(ctx context.Context, caseID int64) (Case, error) {
	c, err := r.scanCase(r.pool.QueryRow(ctx, selectCase+` WHERE id=$1`, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, err
	}
	return c, nil
}

// CreateCase inserts a proposed case.
func (r *PostgresRepository) CreateCase(ctx context.Context, c Case) (Case, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO writeoff_cases
(ref, loan_id, settlement, state, proposed_by, note, proposed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, c.Ref, c.LoanID, c.Settlement, string(c.State), c.ProposedBy, c.Note, c.ProposedAt).Scan(&c.ID)
	if err != nil {
		return Case{}, err
	}
	return c, nil
}

// Review stamps the reviewer verdict. The state predicate guards against a
// concurrent transition of the same case.
func (r *PostgresRepository) Review(ctx context.Context, caseID int64, from, to State, reviewerID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE writeoff_cases
SET state=$3, reviewed_by=$4, reviewed_at=$5 WHERE id=$1 AND state=$2`,
		caseID, string(from), string(to), reviewerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

// Execute writes off the loan in a single transaction: the case moves to
// EXECUTED, every bucket's outstanding is zeroed by raising paid to accrued,
// and the loan status becomes WRITTEN_OFF.
func (r *PostgresRepository) Execute(ctx context.Context, c Case, executorID int64, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE writeoff_cases
SET state='EXECUTED', executed_by=$2, executed_at=$3 WHERE id=$1 AND state='REVIEWED'`,
			c.ID, executorID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInvalidStateTransition
		}
		if _, err := tx.Exec(ctx, `UPDATE obligation_buckets SET paid=accrued WHERE loan_id=$1 AND paid < accrued`, c.LoanID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE loans SET status=$2, updated_at=NOW() WHERE id=$1`, c.LoanID, string(loan.StatusWrittenOff))
		return err
	})
}

const selectCase = `SELECT id, ref, loan_id, settlement, state, proposed_by, reviewed_by, executed_by, note, proposed_at, reviewed_at, executed_at
FROM writeoff_cases`

func (r *PostgresRepository) scanCase(row pgx.Row) (Case, error) {
	var c Case
	var state string
	err := row.Scan(&c.ID, &c.Ref, &c.LoanID, &c.Settlement, &state, &c.ProposedBy,
		&c.ReviewedBy, &c.ExecutedBy, &c.Note, &c.ProposedAt, &c.ReviewedAt, &c.ExecutedAt)
	if err != nil {
		return Case{}, err
	}
	c.State = State(state)
	return c, nil
}
