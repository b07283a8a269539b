package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breatheroute/emissions/internal/emission"
)

// LinkRepository loads the road network.
type LinkRepository interface {
	LoadLinks(ctx context.Context) ([]emission.RoadLink, error)
}

// PostgresLinkRepository loads road links from PostgreSQL.
type PostgresLinkRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLinkRepository creates a new road link repository.
func NewPostgresLinkRepository(pool *pgxpool.Pool) *PostgresLinkRepository {
	return &PostgresLinkRepository{pool: pool}
}

// LoadLinks returns every road link ordered by ID.
func (r *PostgresLinkRepository) LoadLinks(ctx context.Context) ([]emission.RoadLink, error) {
	query := `
		SELECT link_id, road_type, scaling_road_type, daily_total_volume,
		       hourly_capacity, design_speed, gradient,
		       hgv_correction, lcv_correction, length_m
		FROM road_links
		ORDER BY link_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query road links: %w", err)
	}
	defer rows.Close()

	var links []emission.RoadLink
	for rows.Next() {
		var l emission.RoadLink
		if err := rows.Scan(
			&l.ID,
			&l.RoadType,
			&l.ScalingRoadType,
			&l.DailyTotalVolume,
			&l.HourlyCapacity,
			&l.DesignSpeed,
			&l.Gradient,
			&l.HGVCorrection,
			&l.LCVCorrection,
			&l.Length,
		); err != nil {
			return nil, fmt.Errorf("scan road link: %w", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return links, nil
}

// InMemoryLinkRepository is an in-memory implementation of LinkRepository.
type InMemoryLinkRepository struct {
	mu    sync.RWMutex
	links []emission.RoadLink
}

// NewInMemoryLinkRepository creates a repository holding links.
func NewInMemoryLinkRepository(links []emission.RoadLink) *InMemoryLinkRepository {
	return &InMemoryLinkRepository{links: links}
}

// LoadLinks returns a copy of the stored links.
func (r *InMemoryLinkRepository) LoadLinks(_ context.Context) ([]emission.RoadLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]emission.RoadLink(nil), r.links...), nil
}

// ValidateLinks checks that every link references a known road type and
// scaling road type. It returns one error per offending link.
func ValidateLinks(links []emission.RoadLink, hasRoadType, hasScalingRoadType func(string) bool) []error {
	var errs []error
	for _, l := range links {
		if !hasRoadType(l.RoadType) {
			errs = append(errs, fmt.Errorf("link %s: unknown road type %q", l.ID, l.RoadType))
		}
		if !hasScalingRoadType(l.ScalingRoadType) {
			errs = append(errs, fmt.Errorf("link %s: unknown scaling road type %q", l.ID, l.ScalingRoadType))
		}
	}
	return errs
}

var (
	_ LinkRepository = (*PostgresLinkRepository)(nil)
	_ LinkRepository = (*InMemoryLinkRepository)(nil)
)
