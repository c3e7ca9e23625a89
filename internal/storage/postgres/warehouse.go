package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ship-quote/internal/domain/warehouse"
)

const (
	listWarehousesSQL = `SELECT id, name, lat, lng, stock FROM warehouses ORDER BY id`

	restockWarehouseSQL = `UPDATE warehouses SET stock = stock + $2 WHERE id = $1`
)

var _ warehouse.Repository = (*WarehouseRepository)(nil)

// WarehouseRepository implements warehouse.Repository backed by PostgreSQL.
type WarehouseRepository struct {
	pool *pgxpool.Pool
}

// NewWarehouseRepository returns a WarehouseRepository that uses the given pool.
func NewWarehouseRepository(pool *pgxpool.Pool) *WarehouseRepository {
	return &WarehouseRepository{pool: pool}
}

// List returns all warehouses with their current stock, ordered by ID.
func (r *WarehouseRepository) List(ctx context.Context) ([]warehouse.Warehouse, error) {
	rows, err := r.pool.Query(ctx, listWarehousesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing warehouses: %w", err)
	}
	return pgx.CollectRows(rows, scanWarehouse)
}

// Restock adds deltas to warehouse stock in one transaction. Unknown
// warehouse IDs abort the whole update.
func (r *WarehouseRepository) Restock(ctx context.Context, deltas map[int64]int) error {
	if len(deltas) == 0 {
		return nil
	}

	// Fixed update order keeps concurrent restocks from deadlocking.
	ids := slices.Sorted(maps.Keys(deltas))

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(restockWarehouseSQL, id, deltas[id])
		}

		br := tx.SendBatch(ctx, batch)
		for _, id := range ids {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("restocking warehouse %d: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				_ = br.Close()
				return fmt.Errorf("restocking warehouse %d: %w", id, pgx.ErrNoRows)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("restocking warehouses: %w", err)
		}
		return nil
	})
}

func scanWarehouse(row pgx.CollectableRow) (warehouse.Warehouse, error) {
	var (
		w     warehouse.Warehouse
		stock int32
	)
	err := row.Scan(&w.ID, &w.Name, &w.Lat, &w.Lng, &stock)
	w.Stock = int(stock)
	return w, err
}
