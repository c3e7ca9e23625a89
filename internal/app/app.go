// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/ship-quote/internal/domain/shipment"
	"github.com/xenking/ship-quote/internal/handler"
	"github.com/xenking/ship-quote/internal/storage/postgres"
	"github.com/xenking/ship-quote/pkg/health"
	"github.com/xenking/ship-quote/pkg/httpmiddleware"
)

const serviceName = "ship-quote"

// Run creates all dependencies, serves HTTP until ctx is done and then
// drains connections.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}

	probes := health.New()
	probes.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	probes.AddReadinessCheck("postgres_pool", time.Second, health.PoolSaturationCheck(func() health.PoolStats {
		return pool.Stat()
	}))
	probes.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(cfg.Health.MaxGoroutines))
	probes.Start(ctx, cfg.Health.Interval)
	defer probes.Stop()

	devices := postgres.NewDeviceRepository(pool)
	shipments, err := shipment.NewService(
		devices,
		postgres.NewWarehouseRepository(pool),
		postgres.NewOrderRepository(pool),
		shipment.WithMeterProvider(m.MeterProvider()),
		shipment.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create shipment service")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", probes.LiveEndpoint)
	mux.HandleFunc("GET /readyz", probes.ReadyEndpoint)
	handler.NewHandler(devices, shipments).Register(mux)

	routes := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument(serviceName, routes, m),
			httpmiddleware.LogRequests(routes),
			httpmiddleware.Labeler(routes),
		),
	}
	probes.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	<-shutdownDone
	return nil
}
