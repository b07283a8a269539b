// Package main provides the entrypoint for the emission inventory worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/breatheroute/emissions/internal/api"
	"github.com/breatheroute/emissions/internal/api/middleware"
	"github.com/breatheroute/emissions/internal/auth"
	"github.com/breatheroute/emissions/internal/calendar"
	"github.com/breatheroute/emissions/internal/coldemission"
	"github.com/breatheroute/emissions/internal/database"
	"github.com/breatheroute/emissions/internal/hbefa"
	"github.com/breatheroute/emissions/internal/hotemission"
	"github.com/breatheroute/emissions/internal/inventory"
	"github.com/breatheroute/emissions/internal/los"
	"github.com/breatheroute/emissions/internal/meteo"
	"github.com/breatheroute/emissions/internal/meteo/lmu"
	"github.com/breatheroute/emissions/internal/provider/resilience"
	"github.com/breatheroute/emissions/internal/telemetry"
	"github.com/breatheroute/emissions/internal/trafficcycle"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "emissions-worker"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting emission inventory worker")

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	port := getEnvOrDefault("APP_PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	runCfg, err := inventory.ConfigFromEnv()
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	runner, err := buildRunner(ctx, pool, runCfg, registry, log)
	if err != nil {
		return err
	}

	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		handler, err := inventory.NewPubSubHandler(ctx, inventory.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "inventory-runs"),
			Runner:           runner,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
				stop()
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - runs can only be triggered through the API")
	}

	tokenCfg := auth.ConfigFromEnv()
	if tokenCfg.SigningKey == "" {
		tokenCfg.SigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default operator signing key - not secure for production")
	}
	tokens, err := auth.NewTokenService(tokenCfg)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     metrics,
		RequireTLS:  os.Getenv("REQUIRE_TLS") == "true",
		Tokens:      tokens,
		Runner:      runner,
		Store:       inventory.NewPostgresStore(pool),
		Database:    pool,
		Providers:   registry,
		RunnerStats: runner,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

// buildRunner loads the static tables and wires the emission engines.
func buildRunner(ctx context.Context, pool *pgxpool.Pool, runCfg inventory.RunConfig, registry *resilience.Registry, log zerolog.Logger) (*inventory.Runner, error) {
	records, err := trafficcycle.NewPostgresRepository(pool).LoadCountRecords(ctx)
	if err != nil {
		return nil, err
	}

	cal, err := loadCalendar(ctx, pool, records, log)
	if err != nil {
		return nil, err
	}

	cycles, err := trafficcycle.NewProvider(trafficcycle.ProviderConfig{
		Records:  records,
		Calendar: cal,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	factorRepo := hbefa.NewPostgresRepository(pool)
	hotRows, err := factorRepo.LoadHotFactors(ctx)
	if err != nil {
		return nil, err
	}
	hotFactors, err := hbefa.NewTable(hotRows)
	if err != nil {
		return nil, err
	}

	classifier, err := los.NewClassifier(los.DefaultConfig())
	if err != nil {
		return nil, err
	}

	hot, err := hotemission.NewEngine(hotemission.EngineConfig{
		Cycles:           cycles,
		Classifier:       classifier,
		Factors:          hotFactors,
		Pollutants:       runCfg.Pollutants,
		Regime:           runCfg.Regime,
		AreaType:         os.Getenv("HBEFA_AREA_TYPE"),
		MultiplyByLength: runCfg.MultiplyByLength,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}

	links, err := inventory.NewPostgresLinkRepository(pool).LoadLinks(ctx)
	if err != nil {
		return nil, err
	}
	if errs := inventory.ValidateLinks(links, classifier.HasRoadType, cycles.HasRoadType); len(errs) > 0 {
		for _, linkErr := range errs {
			log.Error().Err(linkErr).Msg("invalid road link")
		}
		return nil, errors.Join(errs...)
	}
	log.Info().
		Int("links", len(links)).
		Int("hot_factors", hotFactors.Len()).
		Msg("road network loaded")

	cfg := inventory.RunnerConfig{
		Config: runCfg,
		Links:  links,
		Hot:    hot,
		Cycles: cycles,
		Store:  inventory.NewPostgresStore(pool),
		Logger: log,
	}

	if runCfg.ColdStarts.Enabled() {
		coldRows, err := factorRepo.LoadColdFactors(ctx)
		if err != nil {
			return nil, err
		}
		coldFactors, err := hbefa.NewColdTable(coldRows)
		if err != nil {
			return nil, err
		}

		temperatures, err := buildMeteo(registry, log)
		if err != nil {
			return nil, err
		}

		cfg.Cold = coldemission.NewEngine(coldFactors, runCfg.Pollutants)
		cfg.Temperatures = temperatures
		log.Info().
			Str("station", runCfg.ColdStarts.Station).
			Int("cold_factors", coldFactors.Len()).
			Msg("cold starts enabled")
	}

	return inventory.NewRunner(cfg)
}

// loadCalendar reads the calendar table. An empty table falls back to a
// generated calendar over the counting period without holidays.
func loadCalendar(ctx context.Context, pool *pgxpool.Pool, records []trafficcycle.CountRecord, log zerolog.Logger) (*calendar.Table, error) {
	days, err := calendar.NewPostgresRepository(pool).LoadDays(ctx)
	if err != nil {
		return nil, err
	}

	if len(days) == 0 && len(records) > 0 {
		first, last := records[0].Date, records[0].Date
		for _, rec := range records[1:] {
			if rec.Date.Before(first) {
				first = rec.Date
			}
			if rec.Date.After(last) {
				last = rec.Date
			}
		}
		log.Warn().
			Time("from", first).
			Time("to", last).
			Msg("calendar table empty - generating weekday calendar without holidays")
		days = calendar.Generate(first, last, nil, nil)
	}

	return calendar.NewTable(days)
}

func buildMeteo(registry *resilience.Registry, log zerolog.Logger) (*meteo.Service, error) {
	location := time.UTC
	if tz := os.Getenv("METEO_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
		location = loc
	}

	httpCfg := resilience.DefaultClientConfig(lmu.ProviderName)
	httpCfg.RequestsPerSecond = 2
	httpCfg.Registry = registry
	httpCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(log)

	client := lmu.NewClient(lmu.ClientConfig{
		BaseURL:    os.Getenv("LMU_BASE_URL"),
		HTTPClient: resilience.NewClient(httpCfg),
		Logger:     log,
	})

	return meteo.NewService(meteo.ServiceConfig{
		Source:   client,
		Location: location,
		Logger:   log,
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
