package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ship-quote/internal/domain/shipment"
)

const (
	// decrementStockSQL only matches while the warehouse still covers the
	// line, so a concurrent commit that drained it affects zero rows.
	decrementStockSQL = `UPDATE warehouses SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	createOrderSQL = `INSERT INTO orders
		(id, device_id, quantity, lat, lng, total_price, shipping_cost, discount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createShipmentSQL = `INSERT INTO shipments (order_id, warehouse_id, units, cost)
		VALUES ($1, $2, $3, $4)`
)

// SQLSTATEs raised when concurrent transactions contend for the same rows.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

var _ shipment.OrderRepository = (*OrderRepository)(nil)

// OrderRepository implements shipment.OrderRepository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Commit decrements stock for every shipment line and records the order
// with its shipments in one transaction. If any warehouse no longer has
// enough stock the transaction is rolled back and a *shipment.ConflictError
// is returned.
func (r *OrderRepository) Commit(ctx context.Context, o *shipment.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return fmt.Errorf("parsing order id %q: %w", o.ID, err)
	}
	q := o.Quote

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := decrementStock(ctx, tx, q.Lines); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(createOrderSQL,
			id, q.DeviceID, q.Quantity, q.Destination.Lat, q.Destination.Lng,
			q.TotalPrice, q.ShippingCost, q.Discount, o.CreatedAt,
		)
		for _, l := range q.Lines {
			batch.Queue(createShipmentSQL, id, l.WarehouseID, l.Units, l.Cost)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		return nil
	})
}

// decrementStock locks warehouse rows in ID order, the same order Restock
// uses, so concurrent commits cannot deadlock on each other.
func decrementStock(ctx context.Context, tx pgx.Tx, lines []shipment.Line) error {
	lines = lockOrder(lines)

	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(decrementStockSQL, l.WarehouseID, l.Units)
	}

	br := tx.SendBatch(ctx, batch)
	for _, l := range lines {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			if isContention(err) {
				return &shipment.ConflictError{WarehouseID: l.WarehouseID, Units: l.Units}
			}
			return fmt.Errorf("decrementing stock of warehouse %d: %w", l.WarehouseID, err)
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return &shipment.ConflictError{WarehouseID: l.WarehouseID, Units: l.Units}
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("decrementing stock: %w", err)
	}
	return nil
}

// lockOrder returns a copy of lines sorted by warehouse ID.
func lockOrder(lines []shipment.Line) []shipment.Line {
	return slices.SortedStableFunc(slices.Values(lines), func(a, b shipment.Line) int {
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})
}

// isContention reports whether err is Postgres aborting the transaction
// because of a deadlock or serialization failure.
func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == deadlockDetected || pgErr.Code == serializationFailure
}
