package bankfile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// PostgresRepository reads settlement positions for the bank-file feed.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListSettlements aggregates total outstanding per active loan, skipping loans
// with nothing owed.
func (r *PostgresRepository) ListSettlements(ctx context.Context) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.number, SUM(b.accrued - b.paid) AS outstanding
FROM loans l
JOIN obligation_buckets b ON b.loan_id = l.id
WHERE l.status = $1
GROUP BY l.number
HAVING SUM(b.accrued - b.paid) > 0
ORDER BY l.number`, string(loan.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.LoanNumber, &line.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// FindLoanIDByNumber resolves a loan number to its id.
func (r *PostgresRepository) FindLoanIDByNumber(ctx context.Context, number string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM loans WHERE number=$1`, number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loan.ErrLoanNotFound
		}
		return 0, err
	}
	return id, nil
}
