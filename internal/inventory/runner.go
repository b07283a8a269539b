package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/monitoring"
	"github.com/breatheroute/emissions/internal/telemetry"
)

const instrumentationName = "github.com/breatheroute/emissions/internal/inventory"

// Runner errors.
var (
	ErrInvalidRange = errors.New("invalid date range")
	ErrNoLinks      = errors.New("no road links configured")
	ErrNoEngine     = errors.New("no hot emission engine configured")
)

// HotEngine computes hot emissions and vehicle-km of a link.
type HotEngine interface {
	ComputeHourly(ctx context.Context, link emission.RoadLink, date time.Time) ([24]emission.Result, error)
	ComputeHourlyWithVehicleKilometres(ctx context.Context, link emission.RoadLink, date time.Time) ([24]emission.Result, emission.VehicleKilometres, error)
}

// ColdEngine computes cold-start emissions from starts and temperatures.
type ColdEngine interface {
	ComputeHourly(starts, temperatures [24]float64, class emission.VehicleClass, year int) ([24]map[emission.Pollutant]float64, error)
}

// TemperatureSource provides hourly ambient temperatures.
type TemperatureSource interface {
	HourlyTemperatures(ctx context.Context, station string, date time.Time) ([24]float64, error)
}

// CycleSource provides the activity used to distribute cold starts.
type CycleSource interface {
	DailyScalingFactor(roadType string, date time.Time) (float64, error)
	HourlyScalingFactors(date time.Time) (emission.DiurnalCycle, error)
}

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	Config RunConfig
	Links  []emission.RoadLink
	Hot    HotEngine

	// Cold, Temperatures and Cycles are required when cold starts are enabled.
	Cold         ColdEngine
	Temperatures TemperatureSource
	Cycles       CycleSource

	// Store persists finished runs (optional).
	Store ResultStore

	Logger zerolog.Logger
}

// RunnerMetrics tracks runner statistics.
type RunnerMetrics struct {
	TotalRuns       int64
	DatesProcessed  int64
	DatesFailed     int64
	LinkFailures    int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// Runner computes inventories. Every date is one unit of work; dates run in
// parallel up to the configured concurrency and are merged into one report.
type Runner struct {
	config       RunConfig
	links        []emission.RoadLink
	hot          HotEngine
	cold         ColdEngine
	temperatures TemperatureSource
	cycles       CycleSource
	store        ResultStore
	logger       zerolog.Logger

	tracer        trace.Tracer
	dateCounter   metric.Int64Counter
	dateDuration  metric.Float64Histogram
	failedCounter metric.Int64Counter

	mu      sync.RWMutex
	metrics RunnerMetrics
	active  map[string]time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Hot == nil {
		return nil, ErrNoEngine
	}
	if len(cfg.Links) == 0 {
		return nil, ErrNoLinks
	}

	config := cfg.Config.withDefaults()
	if config.ColdStarts.Enabled() && (cfg.Cold == nil || cfg.Temperatures == nil || cfg.Cycles == nil) {
		return nil, fmt.Errorf("%w: cold starts need a cold engine, temperatures and cycles", ErrInvalidConfig)
	}

	meter := telemetry.Meter(instrumentationName)
	dateCounter, err := meter.Int64Counter(
		"inventory.dates",
		metric.WithDescription("Number of computed dates"),
		metric.WithUnit("{date}"),
	)
	if err != nil {
		return nil, err
	}
	dateDuration, err := meter.Float64Histogram(
		"inventory.date.duration",
		metric.WithDescription("Duration of a date computation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	failedCounter, err := meter.Int64Counter(
		"inventory.link.failures",
		metric.WithDescription("Number of failed link computations"),
		metric.WithUnit("{link}"),
	)
	if err != nil {
		return nil, err
	}

	return &Runner{
		config:        config,
		links:         append([]emission.RoadLink(nil), cfg.Links...),
		hot:           cfg.Hot,
		cold:          cfg.Cold,
		temperatures:  cfg.Temperatures,
		cycles:        cfg.Cycles,
		store:         cfg.Store,
		logger:        cfg.Logger,
		tracer:        telemetry.Tracer(instrumentationName),
		dateCounter:   dateCounter,
		dateDuration:  dateDuration,
		failedCounter: failedCounter,
		active:        make(map[string]time.Time),
	}, nil
}

// Config returns the effective run configuration.
func (r *Runner) Config() RunConfig {
	return r.config
}

// Run computes the inventory for every date in [from, to]. Failed links and
// dates are recorded in the report and never stop the other dates. When ctx
// is cancelled no further dates are dispatched and the partial report is
// returned together with the context error.
func (r *Runner) Run(ctx context.Context, from, to time.Time) (*Report, error) {
	dates, err := dateRange(from, to)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, uuid.NewString(), dates)
}

// Start validates the range and runs the inventory in the background. The
// run is detached from ctx cancellation. It returns the run ID; the report
// is available from the store once the run finishes.
func (r *Runner) Start(ctx context.Context, from, to time.Time) (string, error) {
	dates, err := dateRange(from, to)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	bg := context.WithoutCancel(ctx)

	r.mu.Lock()
	r.active[runID] = time.Now()
	r.mu.Unlock()

	go func() {
		if _, err := r.run(bg, runID, dates); err != nil {
			r.logger.Error().Err(err).Str("run_id", runID).Msg("background inventory run failed")
		}
	}()
	return runID, nil
}

// Active reports whether the run with runID is still in progress.
func (r *Runner) Active(runID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[runID]
	return ok
}

func (r *Runner) run(ctx context.Context, runID string, dates []time.Time) (*Report, error) {
	report := &Report{
		RunID:     runID,
		From:      dates[0],
		To:        dates[len(dates)-1],
		Mode:      r.config.Mode,
		StartedAt: time.Now(),
		Dates:     len(dates),
	}

	r.mu.Lock()
	r.active[runID] = report.StartedAt
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
	}()

	logger := r.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Str("from", emission.DateKey(report.From)).
		Str("to", emission.DateKey(report.To)).
		Int("dates", len(dates)).
		Int("links", len(r.links)).
		Int("concurrency", r.config.Concurrency).
		Str("mode", string(r.config.Mode)).
		Msg("starting inventory run")

	acc := NewAccumulator()

	// Workers never return errors so a failed date cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)

	dispatched := 0
	for _, date := range dates {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			acc.Merge(r.runDate(ctx, date))
			return nil
		})
	}
	_ = g.Wait()

	acc.fill(report)
	report.Skipped = len(dates) - dispatched
	report.FinishedAt = time.Now()

	failedDates := dispatched - report.Completed
	success := failedDates == 0 && report.Skipped == 0
	monitoring.RecordRun(string(r.config.Mode), report.Duration(), success)
	r.updateMetrics(report, dispatched, failedDates)

	logger.Info().
		Dur("duration", report.Duration()).
		Int("completed", report.Completed).
		Int("failed_dates", failedDates).
		Int("skipped", report.Skipped).
		Int("failures", len(report.Failures)).
		Msg("inventory run completed")

	if r.store != nil {
		if err := r.store.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			return report, fmt.Errorf("saving run %s: %w", runID, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// runDate computes all links of one date.
func (r *Runner) runDate(ctx context.Context, date time.Time) DateResult {
	start := time.Now()
	key := emission.DateKey(date)

	ctx, span := r.tracer.Start(ctx, "inventory.date",
		trace.WithAttributes(
			attribute.String("date", key),
			attribute.Int("links", len(r.links)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.config.DateTimeout)
	defer cancel()

	result := DateResult{
		Date:  key,
		Links: make(map[string]emission.Result, len(r.links)),
	}
	if r.config.Mode == ModeHourly {
		result.Hourly = &[24]emission.Result{}
		for h := range result.Hourly {
			result.Hourly[h] = make(emission.Result)
		}
	}
	if r.config.VehicleKilometres {
		result.VehicleKilometres = make(emission.VehicleKilometres)
	}

	for _, link := range r.links {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, Failure{
				Date: date, Stage: StageDate, Error: err.Error(),
			})
			break
		}

		var (
			hourly [24]emission.Result
			vkt    emission.VehicleKilometres
			err    error
		)
		if r.config.VehicleKilometres {
			hourly, vkt, err = r.hot.ComputeHourlyWithVehicleKilometres(ctx, link, date)
		} else {
			hourly, err = r.hot.ComputeHourly(ctx, link, date)
		}
		if err != nil {
			result.Failures = append(result.Failures, r.linkFailure(ctx, date, link.ID, StageHot, err))
			continue
		}

		daily := make(emission.Result)
		for h, res := range hourly {
			daily.Add(res)
			if result.Hourly != nil {
				result.Hourly[h].Add(res)
			}
		}
		result.Links[link.ID] = daily
		if result.VehicleKilometres != nil {
			result.VehicleKilometres.Add(vkt)
		}
	}

	if r.config.ColdStarts.Enabled() && ctx.Err() == nil {
		cold, err := r.coldStarts(ctx, date)
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				Date: date, Stage: StageColdStart, Error: err.Error(),
			})
			r.logger.Warn().Err(err).Str("date", key).Msg("cold start computation failed")
		} else {
			result.ColdStart = cold
		}
	}

	ok := len(result.Failures) == 0
	duration := time.Since(start)
	attrs := metric.WithAttributes(attribute.Bool("success", ok))
	r.dateCounter.Add(ctx, 1, attrs)
	r.dateDuration.Record(ctx, duration.Seconds(), attrs)
	monitoring.RecordDate(duration, ok)

	span.SetAttributes(attribute.Int("failures", len(result.Failures)))
	if !ok {
		span.SetStatus(codes.Error, "date has failures")
	}

	r.logger.Debug().
		Str("date", key).
		Int("links", len(result.Links)).
		Int("failures", len(result.Failures)).
		Dur("duration", duration).
		Msg("date computed")

	return result
}

func (r *Runner) linkFailure(ctx context.Context, date time.Time, linkID, stage string, err error) Failure {
	cause := failureCause(err)
	monitoring.RecordLinkFailure(cause)
	r.failedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("cause", cause),
	))
	r.logger.Warn().
		Err(err).
		Str("link_id", linkID).
		Str("date", emission.DateKey(date)).
		Str("stage", stage).
		Msg("link computation failed")

	return Failure{Date: date, LinkID: linkID, Stage: stage, Error: err.Error()}
}

// coldStarts distributes the daily starts of each class with the scaled
// diurnal cycle and applies the cold-start factors at the station's
// hourly temperatures.
func (r *Runner) coldStarts(ctx context.Context, date time.Time) (emission.Result, error) {
	cs := r.config.ColdStarts

	temperatures, err := r.temperatures.HourlyTemperatures(ctx, cs.Station, date)
	if err != nil {
		return nil, fmt.Errorf("temperatures for %s: %w", cs.Station, err)
	}
	scaling, err := r.cycles.DailyScalingFactor(cs.ScalingRoadType, date)
	if err != nil {
		return nil, err
	}
	cycle, err := r.cycles.HourlyScalingFactors(date)
	if err != nil {
		return nil, err
	}

	total := make(emission.Result)
	for _, class := range emission.VehicleClasses {
		daily, ok := cs.DailyStarts[class]
		if !ok {
			continue
		}
		shape, ok := cycle[class]
		if !ok {
			return nil, fmt.Errorf("%w: no diurnal cycle for %s", emission.ErrMissingCycleData, class)
		}

		var starts [24]float64
		for h := range starts {
			starts[h] = daily * scaling * shape[h]
		}

		hourly, err := r.cold.ComputeHourly(starts, temperatures, class, date.Year())
		if err != nil {
			return nil, err
		}
		for _, hour := range hourly {
			for p, v := range hour {
				total[emission.Key{Class: class, Pollutant: p}] += v
			}
		}
	}
	return total, nil
}

func (r *Runner) updateMetrics(report *Report, dispatched, failedDates int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	linkFailures := 0
	for _, f := range report.Failures {
		if f.LinkID != "" {
			linkFailures++
		}
	}

	r.metrics.TotalRuns++
	r.metrics.DatesProcessed += int64(dispatched)
	r.metrics.DatesFailed += int64(failedDates)
	r.metrics.LinkFailures += int64(linkFailures)
	r.metrics.LastRunAt = report.FinishedAt
	r.metrics.LastRunDuration = report.Duration()
	r.metrics.TotalDuration += report.Duration()
}

// GetMetrics returns a copy of the current metrics.
func (r *Runner) GetMetrics() RunnerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (r *Runner) MetricsSnapshot() map[string]interface{} {
	m := r.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"dates_processed":   m.DatesProcessed,
		"dates_failed":      m.DatesFailed,
		"link_failures":     m.LinkFailures,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}

// dateRange returns every day in [from, to].
func dateRange(from, to time.Time) ([]time.Time, error) {
	from, to = emission.Day(from), emission.Day(to)
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidRange, emission.DateKey(from), emission.DateKey(to))
	}
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}
