package warehouse

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/ship-quote/internal/geo"
)

// Warehouse is a stocking location for devices.
type Warehouse struct {
	ID    int64
	Name  string
	Lat   float64
	Lng   float64
	Stock int
}

// Location returns the warehouse coordinates.
func (w Warehouse) Location() geo.Point {
	return geo.Point{Lat: w.Lat, Lng: w.Lng}
}

// Ranked pairs a warehouse with its distance to a destination.
type Ranked struct {
	Warehouse
	DistanceKm float64
}

// Rank orders warehouses nearest-first relative to dest. Equal distances
// keep their input order.
func Rank(warehouses []Warehouse, dest geo.Point) []Ranked {
	ranked := make([]Ranked, len(warehouses))
	for i, w := range warehouses {
		ranked[i] = Ranked{
			Warehouse:  w,
			DistanceKm: w.Location().DistanceTo(dest),
		}
	}
	slices.SortStableFunc(ranked, compareDistance)
	return ranked
}

func compareDistance(a, b Ranked) int {
	return cmp.Compare(a.DistanceKm, b.DistanceKm)
}

// Repository defines stock operations on warehouses.
type Repository interface {
	// List returns every warehouse ordered by ID.
	List(ctx context.Context) ([]Warehouse, error)
	// Restock adds the given unit deltas to warehouse stock atomically.
	Restock(ctx context.Context, deltas map[int64]int) error
}
