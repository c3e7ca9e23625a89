// Package shipment allocates device orders across warehouses and prices
// the resulting shipments.
package shipment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ship-quote/internal/geo"
)

// Sentinel errors for quote failures. Typed errors below match them via
// errors.Is.
var (
	ErrInvalidQuantity      = errors.New("quantity must be greater than 0")
	ErrInvalidDestination   = errors.New("destination coordinates must be finite")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrShippingCostExceeded = errors.New("shipping cost exceeds 15% of the total price")
	ErrInsufficientStock    = errors.New("not enough stock across warehouses")
	// ErrTransactionConflict is returned by an OrderRepository when a
	// warehouse no longer holds enough stock at commit time.
	ErrTransactionConflict = errors.New("stock changed concurrently, order not committed")
)

// DeviceNotFoundError indicates the requested device does not exist.
type DeviceNotFoundError struct {
	DeviceID int64
}

func (e *DeviceNotFoundError) Error() string { return ErrDeviceNotFound.Error() }

func (e *DeviceNotFoundError) Is(target error) bool { return target == ErrDeviceNotFound }

// ShippingCostExceededError reports a shipping cost above the cap.
type ShippingCostExceededError struct {
	ShippingCost decimal.Decimal
	Limit        decimal.Decimal
}

func (e *ShippingCostExceededError) Error() string { return ErrShippingCostExceeded.Error() }

func (e *ShippingCostExceededError) Is(target error) bool { return target == ErrShippingCostExceeded }

// InsufficientStockError reports how many units could not be sourced.
type InsufficientStockError struct {
	Requested int
	Shortfall int
}

func (e *InsufficientStockError) Error() string { return ErrInsufficientStock.Error() }

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConflictError identifies the warehouse whose conditional decrement failed.
type ConflictError struct {
	WarehouseID int64
	Units       int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("warehouse %d cannot supply %d units: %s", e.WarehouseID, e.Units, ErrTransactionConflict)
}

func (e *ConflictError) Is(target error) bool { return target == ErrTransactionConflict }

// Line is the portion of an order fulfilled from one warehouse.
type Line struct {
	WarehouseID int64
	Units       int
	Cost        decimal.Decimal
}

// Quote is a priced, not yet committed shipment plan.
type Quote struct {
	DeviceID     int64
	Quantity     int
	Destination  geo.Point
	TotalPrice   decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	DiscountRate decimal.Decimal
	Lines        []Line
}

// Order is a committed quote.
type Order struct {
	ID        string
	Quote     Quote
	CreatedAt time.Time
}

// Request holds the input for quoting a shipment.
type Request struct {
	DeviceID    int64
	Quantity    int
	Destination geo.Point
	Commit      bool
}

// Result holds the outcome of a successful quote. Order is set only when
// the request asked for a commit.
type Result struct {
	Quote Quote
	Order *Order
}

// OrderRepository persists orders.
type OrderRepository interface {
	// Commit decrements stock for every line and records the order in a
	// single transaction. It returns an error matching ErrTransactionConflict
	// if any warehouse can no longer cover its line.
	Commit(ctx context.Context, order *Order) error
}
