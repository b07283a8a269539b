package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hotemission"
	"github.com/breatheroute/emissions/internal/los"
)

func TestFailureCause(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("hour 3: %w", emission.ErrMissingFactor), "missing_factor"},
		{emission.ErrDegenerateShareCorrection, "degenerate_share_correction"},
		{fmt.Errorf("%w: %q", los.ErrUnknownRoadType, "Footpath"), "unknown_road_type"},
		{&hotemission.LinkError{LinkID: "1", Err: hotemission.ErrInvalidLink}, "invalid_link"},
		{&hotemission.LinkError{LinkID: "1", Err: los.ErrInvalidSpeed}, "invalid_link"},
		{context.Canceled, "other"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, failureCause(tt.err), "%v", tt.err)
	}
}
