package device

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested device does not exist.
var ErrNotFound = errors.New("device not found")

// Device is a shippable product with its pricing data.
type Device struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Kilograms decimal.Decimal
	Discounts []DiscountTier
}

// DiscountTier unlocks Rate once an order reaches Units.
type DiscountTier struct {
	Units int
	Rate  decimal.Decimal
}

// DiscountRate returns the rate of the tier with the highest threshold met
// by quantity, or zero if no tier qualifies. When two tiers share the
// winning threshold the first one listed wins.
func (d *Device) DiscountRate(quantity int) decimal.Decimal {
	best := -1
	for i, tier := range d.Discounts {
		if quantity < tier.Units {
			continue
		}
		if best < 0 || tier.Units > d.Discounts[best].Units {
			best = i
		}
	}
	if best < 0 {
		return decimal.Zero
	}
	return d.Discounts[best].Rate
}

// Repository defines read operations for the device catalog.
type Repository interface {
	List(ctx context.Context) ([]Device, error)
	GetByID(ctx context.Context, id int64) (*Device, error)
}
