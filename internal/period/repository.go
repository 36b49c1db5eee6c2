package period

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-credit/meridian-credit/internal/loan"
)

// PostgresRepository persists accounting periods and causation markers.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreatePeriod inserts a period. The (year, month) unique key rejects a
// second period for the same month.
func (r *PostgresRepository) CreatePeriod(ctx context.Context, p Period) (Period, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO accounting_periods (year, month, start_date, end_date, is_closed)
VALUES ($1, $2, $3, $4, false) RETURNING id`,
		p.Year, int(p.Month), p.StartDate, p.EndDate).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Period{}, ErrPeriodExists
		}
		return Period{}, err
	}
	return p, nil
}

// GetPeriod loads a period by id.
func (r *PostgresRepository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, year, month, start_date, end_date, is_closed, closed_at
FROM accounting_periods WHERE id=$1`, id)
	return scanPeriod(row)
}

// GetPeriodByMonth loads a period by its calendar month.
func (r *PostgresRepository) GetPeriodByMonth(ctx context.Context, year int, month time.Month) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, year, month, start_date, end_date, is_closed, closed_at
FROM accounting_periods WHERE year=$1 AND month=$2`, year, int(month))
	return scanPeriod(row)
}

// ListActiveLoanIDs returns ids of loans currently in servicing.
func (r *PostgresRepository) ListActiveLoanIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM loans WHERE status=$1 ORDER BY id`, string(loan.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMarkers returns every causation marker recorded for the period.
func (r *PostgresRepository) ListMarkers(ctx context.Context, periodID int64) ([]Marker, error) {
	rows, err := r.pool.Query(ctx, `SELECT loan_id, period_id, kind, caused_at
FROM causation_markers WHERE period_id=$1`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var markers []Marker
	for rows.Next() {
		var m Marker
		var kind string
		if err := rows.Scan(&m.LoanID, &m.PeriodID, &kind, &m.CausedAt); err != nil {
			return nil, err
		}
		m.Kind = loan.BucketKind(kind)
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// ClosePeriod flips is_closed exactly once. A repeat close affects no rows and
// surfaces ErrPeriodAlreadyClosed.
func (r *PostgresRepository) ClosePeriod(ctx context.Context, periodID int64, closedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounting_periods SET is_closed=true, closed_at=$2
WHERE id=$1 AND is_closed=false`, periodID, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodAlreadyClosed
	}
	return nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var month int
	if err := row.Scan(&p.ID, &p.Year, &month, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}
