// Command stock-ingest applies gzipped restock ledgers to warehouse stock.
//
// Each ledger line is "event_id,warehouse_id,units". Ledger exports overlap,
// so an event may appear in several files; it is applied once. Pass 1 builds
// a bloom filter of event IDs per file. Pass 2 sums events no other filter
// has seen and keeps the rest as exact candidates, which are merged by ID.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ship-quote/internal/storage/postgres"
)

const progressEvery = 1_000_000

type event struct {
	id          string
	warehouseID int64
	units       int
}

type filterOptions struct {
	capacity uint
	fpr      float64
}

// fileResult is the pass 2 output of one ledger file.
type fileResult struct {
	// deltas of events seen only in this file.
	deltas map[int64]int
	// candidates may also appear in other files.
	candidates map[string]event
	events     uint64
}

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
		opts        filterOptions
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz restock ledgers")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "compute increments without writing them")
	flag.UintVar(&opts.capacity, "bloom-capacity", 10_000_000, "expected events per ledger file")
	flag.Float64Var(&opts.fpr, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, dryRun, opts); err != nil {
		slog.Error("stock ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, dryRun bool, opts filterOptions) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list ledgers")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz ledgers in %s", dataDir)
	}
	slices.Sort(files)

	deltas, err := aggregate(ctx, files, opts)
	if err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(deltas)) {
		slog.Info("restock", slog.Int64("warehouse_id", id), slog.Int("units", deltas[id]))
	}
	if dryRun || len(deltas) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.NewWarehouseRepository(pool).Restock(ctx, deltas); err != nil {
		return errors.Wrap(err, "apply restock")
	}
	return nil
}

// aggregate returns per-warehouse increments with every event counted once.
func aggregate(ctx context.Context, files []string, opts filterOptions) (map[int64]int, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildFilters(ctx, files, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: summing events")

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			r, err := scanFile(gctx, i, f, filters)
			if err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	deltas := make(map[int64]int)
	seen := make(map[string]event)
	for _, r := range results {
		for id, units := range r.deltas {
			deltas[id] += units
		}
		for id, e := range r.candidates {
			prev, dup := seen[id]
			if !dup {
				seen[id] = e
				deltas[e.warehouseID] += e.units
				continue
			}
			if prev != e {
				return nil, errors.Errorf("event %s differs between ledgers", id)
			}
		}
	}
	slog.Info("events merged",
		slog.Int("candidates", len(seen)),
		slog.Int("warehouses", len(deltas)),
	)
	return deltas, nil
}

func buildFilters(ctx context.Context, files []string, opts filterOptions) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.capacity, opts.fpr)
			var n uint64
			err := streamLedger(ctx, path, func(e event) {
				filter.AddString(e.id)
				n++
				if n%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("events", n))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("events", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanFile sums events of file idx that no other filter contains and
// collects the rest as candidates.
func scanFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (fileResult, error) {
	r := fileResult{
		deltas:     make(map[int64]int),
		candidates: make(map[string]event),
	}
	err := streamLedger(ctx, path, func(e event) {
		r.events++
		for j, f := range filters {
			if j != idx && f.TestString(e.id) {
				r.candidates[e.id] = e
				return
			}
		}
		r.deltas[e.warehouseID] += e.units
	})
	if err != nil {
		return fileResult{}, err
	}
	slog.Info("pass 2 complete",
		slog.Int("file", idx+1),
		slog.Uint64("events", r.events),
		slog.Int("candidates", len(r.candidates)),
	)
	return r, nil
}

// streamLedger calls fn for every event of a gzipped ledger. Blank lines and
// lines starting with '#' are skipped.
func streamLedger(ctx context.Context, path string, fn func(event)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		e, err := parseEvent(text)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func parseEvent(line string) (event, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return event{}, errors.Errorf("want 3 fields, got %d", len(parts))
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return event{}, errors.New("empty event id")
	}
	warehouseID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return event{}, errors.Wrap(err, "parse warehouse id")
	}
	units, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return event{}, errors.Wrap(err, "parse units")
	}
	if units <= 0 {
		return event{}, errors.Errorf("units must be positive, got %d", units)
	}
	return event{id: id, warehouseID: warehouseID, units: units}, nil
}
