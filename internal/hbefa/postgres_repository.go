package hbefa

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breatheroute/emissions/internal/emission"
)

// PostgresRepository loads HBEFA exports from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new factor repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// LoadHotFactors returns all hot emission factors of both regimes.
func (r *PostgresRepository) LoadHotFactors(ctx context.Context) ([]FactorRow, error) {
	query := `
		SELECT regime, veh_cat, year, component,
		       COALESCE(traffic_sit, ''), COALESCE(gradient, ''), COALESCE(area_type, ''),
		       efa_weighted
		FROM hbefa_hot_factors
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query hot factors: %w", err)
	}
	defer rows.Close()

	var factors []FactorRow
	for rows.Next() {
		var (
			f         FactorRow
			regime    string
			category  string
			component string
		)
		if err := rows.Scan(&regime, &category, &f.Year, &component,
			&f.TrafficSituation, &f.Gradient, &f.AreaType, &f.Value); err != nil {
			return nil, fmt.Errorf("scan hot factor: %w", err)
		}

		if f.Regime, err = ParseRegime(regime); err != nil {
			return nil, err
		}
		if f.VehicleClass, err = ParseVehicleCategory(category); err != nil {
			return nil, err
		}
		f.Pollutant = emission.Pollutant(component)
		factors = append(factors, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return factors, nil
}

// LoadColdFactors returns all cold-start factors.
func (r *PostgresRepository) LoadColdFactors(ctx context.Context) ([]ColdFactorRow, error) {
	query := `
		SELECT veh_cat, year, component, ambient_cond_pattern, efa_weighted
		FROM hbefa_cold_factors
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cold factors: %w", err)
	}
	defer rows.Close()

	var factors []ColdFactorRow
	for rows.Next() {
		var (
			f         ColdFactorRow
			category  string
			component string
		)
		if err := rows.Scan(&category, &f.Year, &component, &f.AmbientPattern, &f.Value); err != nil {
			return nil, fmt.Errorf("scan cold factor: %w", err)
		}
		if f.VehicleClass, err = ParseVehicleCategory(category); err != nil {
			return nil, err
		}
		f.Pollutant = emission.Pollutant(component)
		factors = append(factors, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return factors, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
