package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ship-quote/internal/domain/device"
	"github.com/xenking/ship-quote/internal/domain/warehouse"
)

const (
	seedDeviceSQL = `INSERT INTO devices (id, name, price, kilograms)
		VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`

	seedDiscountSQL = `INSERT INTO device_discounts (device_id, units, rate)
		VALUES ($1, $2, $3) ON CONFLICT (device_id, units) DO NOTHING`

	seedWarehouseSQL = `INSERT INTO warehouses (id, name, lat, lng, stock)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`

	// Explicit ids bypass the sequences; move them past the seeded rows.
	syncDeviceSeqSQL    = `SELECT setval(pg_get_serial_sequence('devices', 'id'), GREATEST((SELECT MAX(id) FROM devices), 1))`
	syncWarehouseSeqSQL = `SELECT setval(pg_get_serial_sequence('warehouses', 'id'), GREATEST((SELECT MAX(id) FROM warehouses), 1))`
)

// Seed inserts devices, their discount tiers and warehouses. Rows that
// already exist are left untouched, so running it twice is safe.
func Seed(ctx context.Context, pool *pgxpool.Pool, devices []device.Device, warehouses []warehouse.Warehouse) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range devices {
			batch.Queue(seedDeviceSQL, d.ID, d.Name, d.Price, d.Kilograms)
			for _, t := range d.Discounts {
				batch.Queue(seedDiscountSQL, d.ID, t.Units, t.Rate)
			}
		}
		for _, w := range warehouses {
			batch.Queue(seedWarehouseSQL, w.ID, w.Name, w.Lat, w.Lng, w.Stock)
		}
		batch.Queue(syncDeviceSeqSQL)
		batch.Queue(syncWarehouseSeqSQL)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seeding catalog: %w", err)
		}
		return nil
	})
}
