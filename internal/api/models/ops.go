package models

// Health is the body of the liveness and readiness endpoints.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus reports dependency and runner state.
type SystemStatus struct {
	Status     HealthStatus           `json:"status"`
	Time       Timestamp              `json:"time"`
	Subsystems []SubsystemStatus      `json:"subsystems"`
	Providers  []ProviderStatus       `json:"providers"`
	Runner     map[string]interface{} `json:"runner,omitempty"`
}

// SubsystemStatus is the status of an internal dependency such as the
// database.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the status of an external data provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	SuccessRate   float64      `json:"successRate"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
