package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// InitMeterProvider initializes the Prometheus exporter, the MeterProvider
// and Go runtime metrics. It returns an http.Handler for the /metrics endpoint
// and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Webhook outcomes recorded on storefront.webhook.events.
const (
	WebhookConfirmed = "confirmed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// StorefrontMetrics holds the business instruments. A nil receiver records
// nothing.
type StorefrontMetrics struct {
	ordersPlaced    otelmetric.Int64Counter
	sessionFailures otelmetric.Int64Counter
	webhookEvents   otelmetric.Int64Counter
}

func NewStorefrontMetrics(meter otelmetric.Meter) (*StorefrontMetrics, error) {
	ordersPlaced, err := meter.Int64Counter("storefront.orders.placed",
		otelmetric.WithDescription("Orders recorded at checkout"))
	if err != nil {
		return nil, err
	}

	sessionFailures, err := meter.Int64Counter("storefront.checkout.session_failures",
		otelmetric.WithDescription("Hosted checkout sessions the provider failed to create"))
	if err != nil {
		return nil, err
	}

	webhookEvents, err := meter.Int64Counter("storefront.webhook.events",
		otelmetric.WithDescription("Payment provider webhook deliveries by outcome"))
	if err != nil {
		return nil, err
	}

	return &StorefrontMetrics{
		ordersPlaced:    ordersPlaced,
		sessionFailures: sessionFailures,
		webhookEvents:   webhookEvents,
	}, nil
}

func (m *StorefrontMetrics) RecordOrderPlaced(ctx context.Context, method domain.PaymentMethod) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("payment_method", string(method))))
}

func (m *StorefrontMetrics) RecordSessionFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionFailures.Add(ctx, 1)
}

func (m *StorefrontMetrics) RecordWebhookEvent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}
