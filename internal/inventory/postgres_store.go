package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breatheroute/emissions/internal/emission"
)

// PostgresStore is a PostgreSQL implementation of ResultStore. Link totals
// and failures are written with COPY.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL result store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveRun writes the run header, link totals, vehicle-km, cold-start totals
// and failures in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, report *Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_runs (
			run_id, from_date, to_date, mode, started_at, finished_at,
			dates, completed, skipped, failures
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING
	`,
		report.RunID, report.From, report.To, string(report.Mode),
		report.StartedAt, report.FinishedAt,
		report.Dates, report.Completed, report.Skipped, len(report.Failures),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	var linkRows [][]any
	for linkID, res := range report.Links {
		for k, v := range res {
			linkRows = append(linkRows, []any{report.RunID, linkID, string(k.Class), string(k.Pollutant), v})
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"inventory_link_results"},
		[]string{"run_id", "link_id", "vehicle_class", "pollutant", "value"},
		pgx.CopyFromRows(linkRows),
	); err != nil {
		return fmt.Errorf("copying link results: %w", err)
	}

	var vktRows [][]any
	for class, volumes := range report.VehicleKilometres {
		for vc, km := range volumes {
			vktRows = append(vktRows, []any{report.RunID, class.Label(), string(vc), km})
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"inventory_vehicle_km"},
		[]string{"run_id", "congestion_class", "vehicle_class", "km"},
		pgx.CopyFromRows(vktRows),
	); err != nil {
		return fmt.Errorf("copying vehicle-km: %w", err)
	}

	var coldRows [][]any
	for k, v := range report.ColdStart {
		coldRows = append(coldRows, []any{report.RunID, string(k.Class), string(k.Pollutant), v})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"inventory_cold_start_results"},
		[]string{"run_id", "vehicle_class", "pollutant", "value"},
		pgx.CopyFromRows(coldRows),
	); err != nil {
		return fmt.Errorf("copying cold start results: %w", err)
	}

	failureRows := make([][]any, 0, len(report.Failures))
	for _, f := range report.Failures {
		failureRows = append(failureRows, []any{report.RunID, f.Date, f.LinkID, f.Stage, f.Error})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"inventory_failures"},
		[]string{"run_id", "date", "link_id", "stage", "error"},
		pgx.CopyFromRows(failureRows),
	); err != nil {
		return fmt.Errorf("copying failures: %w", err)
	}

	return tx.Commit(ctx)
}

// GetRun loads a run with its link totals and failures. Hourly totals are
// not persisted.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Report, error) {
	report := &Report{RunID: runID}
	var mode string
	var failures int

	err := s.pool.QueryRow(ctx, `
		SELECT from_date, to_date, mode, started_at, finished_at,
			dates, completed, skipped, failures
		FROM inventory_runs
		WHERE run_id = $1
	`, runID).Scan(
		&report.From, &report.To, &mode, &report.StartedAt, &report.FinishedAt,
		&report.Dates, &report.Completed, &report.Skipped, &failures,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	report.Mode = Mode(mode)

	if report.Links, err = s.loadLinkResults(ctx, runID); err != nil {
		return nil, err
	}
	if report.ColdStart, err = s.loadColdStart(ctx, runID); err != nil {
		return nil, err
	}
	if report.VehicleKilometres, err = s.loadVehicleKilometres(ctx, runID); err != nil {
		return nil, err
	}
	if report.Failures, err = s.loadFailures(ctx, runID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *PostgresStore) loadLinkResults(ctx context.Context, runID string) (map[string]emission.Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT link_id, vehicle_class, pollutant, value
		FROM inventory_link_results
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying link results: %w", err)
	}
	defer rows.Close()

	links := make(map[string]emission.Result)
	for rows.Next() {
		var linkID, class, pollutant string
		var value float64
		if err := rows.Scan(&linkID, &class, &pollutant, &value); err != nil {
			return nil, err
		}
		if links[linkID] == nil {
			links[linkID] = make(emission.Result)
		}
		links[linkID][emission.Key{Class: emission.VehicleClass(class), Pollutant: emission.Pollutant(pollutant)}] = value
	}
	return links, rows.Err()
}

func (s *PostgresStore) loadColdStart(ctx context.Context, runID string) (emission.Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vehicle_class, pollutant, value
		FROM inventory_cold_start_results
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying cold start results: %w", err)
	}
	defer rows.Close()

	result := make(emission.Result)
	for rows.Next() {
		var class, pollutant string
		var value float64
		if err := rows.Scan(&class, &pollutant, &value); err != nil {
			return nil, err
		}
		result[emission.Key{Class: emission.VehicleClass(class), Pollutant: emission.Pollutant(pollutant)}] = value
	}
	return result, rows.Err()
}

func (s *PostgresStore) loadVehicleKilometres(ctx context.Context, runID string) (emission.VehicleKilometres, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT congestion_class, vehicle_class, km
		FROM inventory_vehicle_km
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying vehicle-km: %w", err)
	}
	defer rows.Close()

	labels := make(map[string]emission.CongestionClass, len(emission.CongestionClasses))
	for _, c := range emission.CongestionClasses {
		labels[c.Label()] = c
	}

	vkt := make(emission.VehicleKilometres)
	for rows.Next() {
		var label, class string
		var km float64
		if err := rows.Scan(&label, &class, &km); err != nil {
			return nil, err
		}
		c, ok := labels[label]
		if !ok {
			return nil, fmt.Errorf("unknown congestion class %q", label)
		}
		if vkt[c] == nil {
			vkt[c] = make(emission.VehicleVolumes)
		}
		vkt[c][emission.VehicleClass(class)] = km
	}
	return vkt, rows.Err()
}

func (s *PostgresStore) loadFailures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, link_id, stage, error
		FROM inventory_failures
		WHERE run_id = $1
		ORDER BY date, link_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Date, &f.LinkID, &f.Stage, &f.Error); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ListRuns returns up to limit run summaries, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, from_date, to_date, mode, started_at, finished_at,
			dates, completed, skipped, failures
		FROM inventory_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		var mode string
		var from, to time.Time
		if err := rows.Scan(
			&sum.RunID, &from, &to, &mode, &sum.StartedAt, &sum.FinishedAt,
			&sum.Dates, &sum.Completed, &sum.Skipped, &sum.Failures,
		); err != nil {
			return nil, err
		}
		sum.From, sum.To, sum.Mode = from, to, Mode(mode)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

var _ ResultStore = (*PostgresStore)(nil)
