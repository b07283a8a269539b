// Package handler provides HTTP handlers for the inventory operator API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/api/response"
	"github.com/breatheroute/emissions/internal/provider/resilience"
)

// Pinger checks a dependency such as the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderHealthSource reports the health of external data providers.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// RunnerStats exposes runner counters.
type RunnerStats interface {
	MetricsSnapshot() map[string]interface{}
}

// OpsConfig holds the dependencies of OpsHandler. Nil dependencies are
// skipped by the checks.
type OpsConfig struct {
	Version   string
	BuildTime string
	Database  Pinger
	Providers ProviderHealthSource
	Runner    RunnerStats

	// PingTimeout bounds the database check (default 2s).
	PingTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while
// the database is unreachable; an unhealthy meteo provider only degrades it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	db := h.databaseStatus(r.Context())
	if db.Status == models.HealthStatusFail {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.now()),
			Details: map[string]interface{}{"database": *db.Detail},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: overall(db.Status, h.providerStatuses()),
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - dependency and runner detail.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	db := h.databaseStatus(r.Context())
	providers := h.providerStatuses()

	status := models.SystemStatus{
		Status:     overall(db.Status, providers),
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{db},
		Providers:  providers,
	}
	if h.cfg.Runner != nil {
		status.Runner = h.cfg.Runner.MetricsSnapshot()
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	status := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
	if h.cfg.Database == nil {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
	defer cancel()
	if err := h.cfg.Database.Ping(ctx); err != nil {
		detail := err.Error()
		status.Status = models.HealthStatusFail
		status.Detail = &detail
	}
	return status
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Providers == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Providers.GetAllHealth()
	statuses := make([]models.ProviderStatus, 0, len(all))
	for _, p := range all {
		ps := models.ProviderStatus{
			Provider:     p.Name,
			Status:       providerStatus(p),
			CircuitState: p.CircuitState.String(),
			SuccessRate:  successRate(p),
		}
		if p.LastSuccessAt != nil {
			ts := models.Timestamp(*p.LastSuccessAt)
			ps.LastSuccessAt = &ts
		}
		if p.LastFailureAt != nil {
			ts := models.Timestamp(*p.LastFailureAt)
			ps.LastFailureAt = &ts
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		statuses = append(statuses, ps)
	}
	return statuses
}

func providerStatus(p *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case p.IsHealthy():
		return models.HealthStatusOK
	case p.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func successRate(p *resilience.ProviderHealth) float64 {
	if p.Counts.Requests == 0 {
		return 1
	}
	return float64(p.Counts.TotalSuccesses) / float64(p.Counts.Requests)
}

// overall folds dependency states. Provider failures degrade but never fail
// the service.
func overall(db models.HealthStatus, providers []models.ProviderStatus) models.HealthStatus {
	if db == models.HealthStatusFail {
		return models.HealthStatusFail
	}
	for _, p := range providers {
		if p.Status != models.HealthStatusOK {
			return models.HealthStatusDegraded
		}
	}
	return models.HealthStatusOK
}
