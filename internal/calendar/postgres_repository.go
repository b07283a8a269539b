package calendar

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository loads calendar rows from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new calendar repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// LoadDays returns all calendar rows ordered by date.
func (r *PostgresRepository) LoadDays(ctx context.Context) ([]Day, error) {
	query := `
		SELECT date, day_type, day_of_week
		FROM calendar_days
		ORDER BY date
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar days: %w", err)
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Date, &d.RawDayType, &d.Weekday); err != nil {
			return nil, fmt.Errorf("scan calendar day: %w", err)
		}
		days = append(days, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return days, nil
}
