package shipment

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/ship-quote/internal/domain/warehouse"
)

var (
	// ratePerKgKm is the shipping charge per kilogram per kilometer.
	ratePerKgKm = decimal.RequireFromString("0.01")
	// shippingCap is the largest allowed share of total price spent on shipping.
	shippingCap = decimal.RequireFromString("0.15")
)

// LineCost returns the shipping cost of one line, rounded to cents.
func LineCost(distanceKm float64, kilograms decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(distanceKm).
		Mul(kilograms).
		Mul(ratePerKgKm).
		Round(2)
}

// ShippingLimit returns the maximum shipping cost allowed for totalPrice.
func ShippingLimit(totalPrice decimal.Decimal) decimal.Decimal {
	return totalPrice.Mul(shippingCap)
}

// Allocate walks ranked warehouses nearest-first, drawing as many units as
// each can supply until quantity is met. Warehouses without stock are
// skipped. It returns the lines and the demand left unfilled.
func Allocate(ranked []warehouse.Ranked, quantity int, kilograms decimal.Decimal) ([]Line, int) {
	var lines []Line
	remaining := quantity
	for _, r := range ranked {
		if remaining <= 0 {
			break
		}
		if r.Stock <= 0 {
			continue
		}

		units := min(r.Stock, remaining)
		lines = append(lines, Line{
			WarehouseID: r.ID,
			Units:       units,
			Cost:        LineCost(r.DistanceKm, kilograms),
		})
		remaining -= units
	}
	return lines, remaining
}

// sumCosts returns the exact sum of line costs.
func sumCosts(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Cost)
	}
	return sum
}
