package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// gatewayReqs counts platform calls by operation and outcome
	// (ok, not_found, graphql_error, transport_error).
	gatewayReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of commerce platform calls.",
		},
		[]string{"op", "outcome"},
	)

	gatewayLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of commerce platform calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(gatewayReqs, gatewayLat)
}

// Instrumented records a span, a latency sample and an outcome counter for
// every call.
type Instrumented struct {
	Next Gateway
}

// NewInstrumented wraps next.
func NewInstrumented(next Gateway) *Instrumented { return &Instrumented{Next: next} }

var tracer = otel.Tracer("gateway")

// ListOrders implements Gateway.
func (g *Instrumented) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	ctx, end := observe(ctx, "listOrders",
		attribute.Int("query.limit", q.Limit),
		attribute.String("query.sort", q.Sort),
		attribute.Bool("query.search", q.Search != ""),
		attribute.StringSlice("query.package_statuses", q.PackageStatuses),
	)
	out, err := g.Next.ListOrders(ctx, q)
	end(err)
	return out, err
}

// GetOrder implements Gateway.
func (g *Instrumented) GetOrder(ctx context.Context, id string) (*Order, error) {
	ctx, end := observe(ctx, "getOrder", attribute.String("order.id", id))
	o, err := g.Next.GetOrder(ctx, id)
	end(err)
	return o, err
}

// GetMerchant implements Gateway.
func (g *Instrumented) GetMerchant(ctx context.Context) (*MerchantProfile, error) {
	ctx, end := observe(ctx, "getMerchant")
	m, err := g.Next.GetMerchant(ctx)
	end(err)
	return m, err
}

// RefundOrderLine implements Gateway.
func (g *Instrumented) RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error) {
	ctx, end := observe(ctx, "refundOrderLine",
		attribute.String("order.id", in.OrderID),
		attribute.Int("refund.lines", len(in.OrderRefundLines)),
	)
	o, err := g.Next.RefundOrderLine(ctx, in)
	end(err)
	return o, err
}

func observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "Gateway."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		gatewayLat.WithLabelValues(op).Observe(time.Since(start).Seconds())
		outcome := Outcome(err)
		gatewayReqs.WithLabelValues(op, outcome).Inc()
		span.SetAttributes(attribute.String("gateway.outcome", outcome))
		if err != nil && outcome != "not_found" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	var gqlErr *Error
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.As(err, &gqlErr):
		return "graphql_error"
	default:
		return "transport_error"
	}
}
