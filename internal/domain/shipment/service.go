package shipment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/ship-quote/internal/domain/device"
	"github.com/xenking/ship-quote/internal/domain/warehouse"
)

const instrumentationName = "github.com/xenking/ship-quote/internal/domain/shipment"

// Service quotes and commits shipments.
type Service struct {
	devices    device.Repository
	warehouses warehouse.Repository
	orders     OrderRepository

	now    func() time.Time
	tracer trace.Tracer
	quotes metric.Int64Counter
}

// Option configures a Service.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider sets the meter provider used for quote counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for quote spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// NewService creates a shipment Service.
func NewService(
	devices device.Repository,
	warehouses warehouse.Repository,
	orders OrderRepository,
	opts ...Option,
) (*Service, error) {
	o := options{
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	quotes, err := o.meterProvider.Meter(instrumentationName).Int64Counter("shipment.quotes",
		metric.WithDescription("Shipment quote requests by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create quotes counter")
	}

	return &Service{
		devices:    devices,
		warehouses: warehouses,
		orders:     orders,
		now:        time.Now,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		quotes:     quotes,
	}, nil
}

// Quote prices a shipment of req.Quantity devices to req.Destination and,
// when req.Commit is set, commits it as an order.
//
// The shipping cap is checked before stock sufficiency, so an order that is
// both too expensive to ship and short on stock reports the cap.
func (s *Service) Quote(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "shipment.Quote", trace.WithAttributes(
		attribute.Int64("device.id", req.DeviceID),
		attribute.Int("quantity", req.Quantity),
		attribute.Bool("commit", req.Commit),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.quotes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome(rerr, req.Commit)),
		))
		span.End()
	}()

	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !req.Destination.Finite() {
		return nil, ErrInvalidDestination
	}

	d, err := s.devices.GetByID(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, &DeviceNotFoundError{DeviceID: req.DeviceID}
		}
		return nil, errors.Wrap(err, "get device")
	}
	rate := d.DiscountRate(req.Quantity)

	all, err := s.warehouses.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list warehouses")
	}
	ranked := warehouse.Rank(all, req.Destination)

	lines, remaining := Allocate(ranked, req.Quantity, d.Kilograms)

	shippingCost := sumCosts(lines)
	totalPrice := d.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	discount := totalPrice.Mul(rate)

	if limit := ShippingLimit(totalPrice); shippingCost.GreaterThan(limit) {
		return nil, &ShippingCostExceededError{
			ShippingCost: shippingCost,
			Limit:        limit,
		}
	}
	if remaining > 0 {
		return nil, &InsufficientStockError{
			Requested: req.Quantity,
			Shortfall: remaining,
		}
	}

	q := Quote{
		DeviceID:     req.DeviceID,
		Quantity:     req.Quantity,
		Destination:  req.Destination,
		TotalPrice:   totalPrice.Round(2),
		ShippingCost: shippingCost.Round(2),
		Discount:     discount.Round(2),
		DiscountRate: rate,
		Lines:        lines,
	}
	if !req.Commit {
		return &Result{Quote: q}, nil
	}

	o := &Order{
		ID:        uuid.New().String(),
		Quote:     q,
		CreatedAt: s.now(),
	}
	if err := s.orders.Commit(ctx, o); err != nil {
		return nil, errors.Wrap(err, "commit order")
	}

	zctx.From(ctx).Info("Order committed",
		zap.String("order_id", o.ID),
		zap.Int64("device_id", q.DeviceID),
		zap.Int("quantity", q.Quantity),
		zap.Int("lines", len(q.Lines)),
		zap.Stringer("shipping_cost", q.ShippingCost),
	)

	return &Result{Quote: q, Order: o}, nil
}

// outcome classifies a quote result for metrics.
func outcome(err error, commit bool) string {
	switch {
	case err == nil && commit:
		return "committed"
	case err == nil:
		return "quoted"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidDestination):
		return "invalid_destination"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrShippingCostExceeded):
		return "shipping_cost_exceeded"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrTransactionConflict):
		return "transaction_conflict"
	default:
		return "error"
	}
}
