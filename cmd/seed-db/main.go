// Command seed-db applies the schema and loads the device and warehouse
// catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ship-quote/db"
	"github.com/xenking/ship-quote/internal/domain/device"
	"github.com/xenking/ship-quote/internal/domain/warehouse"
	"github.com/xenking/ship-quote/internal/storage/postgres"
)

type catalogJSON struct {
	Devices []struct {
		ID        int64           `json:"id"`
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		Kilograms decimal.Decimal `json:"kilograms"`
		Discounts []struct {
			Units int             `json:"units"`
			Rate  decimal.Decimal `json:"rate"`
		} `json:"discounts"`
	} `json:"devices"`
	Warehouses []struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Lat   float64 `json:"lat"`
		Lng   float64 `json:"lng"`
		Stock int     `json:"stock"`
	} `json:"warehouses"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to catalog JSON file (embedded catalog if empty)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	data := db.Catalog
	if catalogFile != "" {
		slog.Info("reading catalog file", slog.String("path", catalogFile))

		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog file")
		}
	}

	devices, warehouses, err := parseCatalog(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.Seed(ctx, pool, devices, warehouses); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	slog.Info("seeded catalog",
		slog.Int("devices", len(devices)),
		slog.Int("warehouses", len(warehouses)),
	)
	return nil
}

func parseCatalog(data []byte) ([]device.Device, []warehouse.Warehouse, error) {
	var c catalogJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, nil, errors.Wrap(err, "decode JSON")
	}

	devices := make([]device.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		if d.Name == "" || d.Price.IsNegative() || d.Kilograms.IsNegative() {
			return nil, nil, errors.Errorf("device %d: invalid name, price or weight", d.ID)
		}
		dev := device.Device{ID: d.ID, Name: d.Name, Price: d.Price, Kilograms: d.Kilograms}
		for _, t := range d.Discounts {
			if t.Units <= 0 || t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(1)) {
				return nil, nil, errors.Errorf("device %d: invalid discount tier %d/%s", d.ID, t.Units, t.Rate)
			}
			dev.Discounts = append(dev.Discounts, device.DiscountTier{Units: t.Units, Rate: t.Rate})
		}
		devices = append(devices, dev)
	}

	warehouses := make([]warehouse.Warehouse, 0, len(c.Warehouses))
	for _, w := range c.Warehouses {
		if w.Stock < 0 {
			return nil, nil, errors.Errorf("warehouse %d: negative stock %d", w.ID, w.Stock)
		}
		warehouses = append(warehouses, warehouse.Warehouse{
			ID: w.ID, Name: w.Name, Lat: w.Lat, Lng: w.Lng, Stock: w.Stock,
		})
	}
	return devices, warehouses, nil
}
