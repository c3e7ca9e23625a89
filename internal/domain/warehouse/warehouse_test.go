package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ship-quote/internal/geo"
)

func TestRank_NearestFirst(t *testing.T) {
	warehouses := []Warehouse{
		{ID: 1, Name: "Los Angeles", Lat: 33.9425, Lng: -118.408056},
		{ID: 2, Name: "New York", Lat: 40.639722, Lng: -73.778889},
		{ID: 4, Name: "Paris", Lat: 49.009722, Lng: 2.547778},
	}
	boston := geo.Point{Lat: 42.3601, Lng: -71.0589}

	ranked := Rank(warehouses, boston)
	require.Len(t, ranked, 3)

	assert.Equal(t, int64(2), ranked[0].ID)
	assert.Equal(t, int64(1), ranked[1].ID)
	assert.Equal(t, int64(4), ranked[2].ID)
	assert.LessOrEqual(t, ranked[0].DistanceKm, ranked[1].DistanceKm)
	assert.LessOrEqual(t, ranked[1].DistanceKm, ranked[2].DistanceKm)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	warehouses := []Warehouse{
		{ID: 7, Lat: 10, Lng: 10},
		{ID: 3, Lat: 10, Lng: 10},
		{ID: 5, Lat: 10, Lng: 10},
		{ID: 1, Lat: 50, Lng: 50},
	}

	for range 10 {
		ranked := Rank(warehouses, geo.Point{Lat: 10, Lng: 10})
		ids := make([]int64, len(ranked))
		for i, r := range ranked {
			ids[i] = r.ID
		}
		assert.Equal(t, []int64{7, 3, 5, 1}, ids)
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	warehouses := []Warehouse{
		{ID: 1, Lat: 50, Lng: 50},
		{ID: 2, Lat: 0, Lng: 0},
	}

	_ = Rank(warehouses, geo.Point{})
	assert.Equal(t, int64(1), warehouses[0].ID)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, geo.Point{}))
}
