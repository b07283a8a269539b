package trafficcycle

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breatheroute/emissions/internal/emission"
)

// PostgresRepository loads counting records from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new counting data repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// LoadCountRecords returns every counting record. Hourly values are stored
// as a 24 element double precision array.
func (r *PostgresRepository) LoadCountRecords(ctx context.Context) ([]CountRecord, error) {
	query := `
		SELECT road_link_id, scaling_road_type, vehicle_class, date, daily_value,
		       hourly_values, complete, valid, day_type
		FROM counting_records
		ORDER BY date, road_link_id, vehicle_class
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query counting records: %w", err)
	}
	defer rows.Close()

	var records []CountRecord
	for rows.Next() {
		var (
			rec     CountRecord
			class   string
			hourly  []float64
			dayType int
		)
		if err := rows.Scan(
			&rec.RoadLinkID,
			&rec.ScalingRoadType,
			&class,
			&rec.Date,
			&rec.DailyValue,
			&hourly,
			&rec.Complete,
			&rec.Valid,
			&dayType,
		); err != nil {
			return nil, fmt.Errorf("scan counting record: %w", err)
		}
		if len(hourly) != 24 {
			return nil, fmt.Errorf("counting record %s %s %s: expected 24 hourly values, got %d",
				rec.RoadLinkID, class, emission.DateKey(rec.Date), len(hourly))
		}
		copy(rec.Hourly[:], hourly)
		rec.VehicleClass = emission.VehicleClass(class)
		rec.DayType = emission.DayType(dayType)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
