package models

// RunStatus is the lifecycle state of an inventory run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// CreateRunRequest is the body of POST /v1/runs. Both dates are inclusive.
type CreateRunRequest struct {
	From *Date `json:"from"`
	To   *Date `json:"to"`
}

// RunAccepted is returned when a run has been started.
type RunAccepted struct {
	RunID  string    `json:"runId"`
	Status RunStatus `json:"status"`
	Mode   string    `json:"mode"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	RunID      string     `json:"runId"`
	Status     RunStatus  `json:"status"`
	From       Date       `json:"from"`
	To         Date       `json:"to"`
	Mode       string     `json:"mode"`
	StartedAt  Timestamp  `json:"startedAt"`
	FinishedAt *Timestamp `json:"finishedAt,omitempty"`
	Dates      int        `json:"dates"`
	Completed  int        `json:"completed"`
	Skipped    int        `json:"skipped"`
	Failures   int        `json:"failures"`
}

// RunList is the body of GET /v1/runs.
type RunList struct {
	Items []RunSummary `json:"items"`
	Limit int          `json:"limit"`
}

// EmissionTotals maps vehicle class to pollutant to emitted mass.
type EmissionTotals map[string]map[string]float64

// RunDetail is the body of GET /v1/runs/{runId}.
type RunDetail struct {
	RunSummary

	DurationSeconds float64 `json:"durationSeconds"`

	// Totals sums every link over the run, per pollutant.
	Totals map[string]float64 `json:"totals"`

	Network           EmissionTotals                `json:"network"`
	ColdStart         EmissionTotals                `json:"coldStart,omitempty"`
	VehicleKilometres map[string]map[string]float64 `json:"vehicleKilometres,omitempty"`
	Links             map[string]EmissionTotals     `json:"links,omitempty"`

	// Hourly holds per-pollutant network totals by date and hour.
	Hourly map[string][]map[string]float64 `json:"hourly,omitempty"`

	FailedLinks []string     `json:"failedLinks,omitempty"`
	Failures    []RunFailure `json:"failures,omitempty"`
}

// RunFailure is one failed link or date.
type RunFailure struct {
	Date   Date   `json:"date"`
	LinkID string `json:"linkId,omitempty"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}
