package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ship-quote/internal/domain/device"
)

const (
	listDevicesSQL = `SELECT id, name, price, kilograms FROM devices ORDER BY id`

	getDeviceByIDSQL = `SELECT id, name, price, kilograms FROM devices WHERE id = $1`

	listDiscountsSQL = `SELECT device_id, units, rate FROM device_discounts
		ORDER BY device_id, units, id`

	getDiscountsByDeviceSQL = `SELECT device_id, units, rate FROM device_discounts
		WHERE device_id = $1 ORDER BY units, id`
)

var _ device.Repository = (*DeviceRepository)(nil)

// DeviceRepository implements device.Repository backed by PostgreSQL.
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository returns a DeviceRepository that uses the given pool.
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// List returns all devices with their discount tiers, ordered by ID.
func (r *DeviceRepository) List(ctx context.Context) ([]device.Device, error) {
	rows, err := r.pool.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	devices, err := pgx.CollectRows(rows, scanDevice)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	rows, err = r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}

	byDevice := make(map[int64][]device.DiscountTier, len(devices))
	for _, d := range discounts {
		byDevice[d.deviceID] = append(byDevice[d.deviceID], d.tier)
	}
	for i := range devices {
		devices[i].Discounts = byDevice[devices[i].ID]
	}
	return devices, nil
}

// GetByID returns a single device with its discount tiers.
// Returns device.ErrNotFound when no device has the given ID.
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*device.Device, error) {
	rows, err := r.pool.Query(ctx, getDeviceByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting device %d: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDevice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, device.ErrNotFound
		}
		return nil, fmt.Errorf("getting device %d: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, getDiscountsByDeviceSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discounts for device %d: %w", id, err)
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("getting discounts for device %d: %w", id, err)
	}

	for _, dd := range discounts {
		d.Discounts = append(d.Discounts, dd.tier)
	}
	return &d, nil
}

func scanDevice(row pgx.CollectableRow) (device.Device, error) {
	var d device.Device
	err := row.Scan(&d.ID, &d.Name, &d.Price, &d.Kilograms)
	return d, err
}

type discountRow struct {
	deviceID int64
	tier     device.DiscountTier
}

func scanDiscount(row pgx.CollectableRow) (discountRow, error) {
	var (
		d     discountRow
		units int32
	)
	err := row.Scan(&d.deviceID, &units, &d.tier.Rate)
	d.tier.Units = int(units)
	return d, err
}
