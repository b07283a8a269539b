package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/emissions/internal/api/middleware"
	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/api/response"
	"github.com/breatheroute/emissions/internal/inventory"
)

// Run listing limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// RunStarter starts inventory runs in the background.
type RunStarter interface {
	Start(ctx context.Context, from, to time.Time) (string, error)
	Active(runID string) bool
	Config() inventory.RunConfig
}

// RunsHandler handles the inventory run endpoints.
type RunsHandler struct {
	runner RunStarter
	store  inventory.ResultStore
	logger zerolog.Logger
}

// NewRunsHandler creates a RunsHandler.
func NewRunsHandler(runner RunStarter, store inventory.ResultStore, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		runner: runner,
		store:  store,
		logger: logger.With().Str("component", "runs_handler").Logger(),
	}
}

// CreateRun handles POST /v1/runs.
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, r, "request body must be a JSON object with from and to dates", nil)
		return
	}

	var fieldErrors []models.FieldError
	if req.From == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "from", Message: "required", Code: "REQUIRED"})
	}
	if req.To == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "to", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "missing run range", fieldErrors)
		return
	}

	runID, err := h.runner.Start(r.Context(), req.From.Time(), req.To.Time())
	if err != nil {
		if errors.Is(err, inventory.ErrInvalidRange) {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "to", Message: "must not be before from", Code: "INVALID_RANGE"},
			})
			return
		}
		h.logger.Error().Err(err).Msg("failed to start inventory run")
		response.InternalError(w, r, "failed to start inventory run")
		return
	}

	h.logger.Info().
		Str("run_id", runID).
		Str("operator", middleware.GetOperator(r.Context())).
		Time("from", req.From.Time()).
		Time("to", req.To.Time()).
		Msg("inventory run started")

	response.Accepted(w, r, "/v1/runs/"+runID, models.RunAccepted{
		RunID:  runID,
		Status: models.RunStatusRunning,
		Mode:   string(h.runner.Config().Mode),
	})
}

// ListRuns handles GET /v1/runs?limit=N.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxListLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(MaxListLimit), Code: "OUT_OF_RANGE"},
			})
			return
		}
		limit = n
	}

	summaries, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list inventory runs")
		response.InternalError(w, r, "failed to list inventory runs")
		return
	}

	items := make([]models.RunSummary, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, toRunSummary(s))
	}
	response.JSON(w, r, http.StatusOK, models.RunList{Items: items, Limit: limit})
}

// GetRun handles GET /v1/runs/{runId}. Per-link results are included with
// ?include=links.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	report, err := h.store.GetRun(r.Context(), runID)
	switch {
	case errors.Is(err, inventory.ErrRunNotFound):
		if h.runner.Active(runID) {
			response.JSON(w, r, http.StatusOK, models.RunSummary{
				RunID:  runID,
				Status: models.RunStatusRunning,
				Mode:   string(h.runner.Config().Mode),
			})
			return
		}
		response.NotFound(w, r, "inventory run not found")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to load inventory run")
		response.InternalError(w, r, "failed to load inventory run")
		return
	}

	response.JSON(w, r, http.StatusOK, toRunDetail(report, r.URL.Query().Get("include") == "links"))
}
