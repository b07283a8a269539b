package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/inventory"
)

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary inventory.RunSummary
		want    models.RunStatus
	}{
		{"all dates clean", inventory.RunSummary{Dates: 3, Completed: 3}, models.RunStatusCompleted},
		{"some failures", inventory.RunSummary{Dates: 3, Completed: 2, Failures: 4}, models.RunStatusPartial},
		{"nothing completed", inventory.RunSummary{Dates: 3, Completed: 0, Failures: 3}, models.RunStatusFailed},
		{"cancelled", inventory.RunSummary{Dates: 3, Completed: 1, Skipped: 2}, models.RunStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(tt.summary))
		})
	}
}
