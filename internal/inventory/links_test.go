package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/inventory"
)

func TestInMemoryLinkRepository_LoadLinks(t *testing.T) {
	repo := inventory.NewInMemoryLinkRepository([]emission.RoadLink{
		{ID: "a", RoadType: "Local", ScalingRoadType: "urban"},
		{ID: "b", RoadType: "Trunk", ScalingRoadType: "urban"},
	})

	links, err := repo.LoadLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)

	links[0].ID = "changed"

	again, err := repo.LoadLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].ID)
}

func TestValidateLinks(t *testing.T) {
	known := func(values ...string) func(string) bool {
		set := make(map[string]bool)
		for _, v := range values {
			set[v] = true
		}
		return func(s string) bool { return set[s] }
	}

	links := []emission.RoadLink{
		{ID: "ok", RoadType: "Local", ScalingRoadType: "urban"},
		{ID: "bad-road", RoadType: "Unknown", ScalingRoadType: "urban"},
		{ID: "bad-both", RoadType: "Unknown", ScalingRoadType: "rural"},
	}

	errs := inventory.ValidateLinks(links, known("Local"), known("urban"))

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "bad-road")
	assert.Contains(t, errs[1].Error(), `unknown road type "Unknown"`)
	assert.Contains(t, errs[2].Error(), `unknown scaling road type "rural"`)
}

func TestValidateLinks_AllKnown(t *testing.T) {
	all := func(string) bool { return true }

	errs := inventory.ValidateLinks([]emission.RoadLink{{ID: "a"}}, all, all)

	assert.Empty(t, errs)
}
