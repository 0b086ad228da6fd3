package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &kafka.Message{Headers: []kafka.Header{{Key: "existing", Value: []byte("1")}}}
	c := NewHeaderCarrier(msg)

	c.Set("existing", "2")
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "2", c.Get("existing"))
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"existing", "traceparent"}, c.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestHeaderCarrier_PropagatesTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := &kafka.Message{}
	propagator := propagation.TraceContext{}
	propagator.Inject(ctx, NewHeaderCarrier(msg))

	extracted := propagator.Extract(context.Background(), NewHeaderCarrier(msg))
	got := trace.SpanContextFromContext(extracted)

	assert.True(t, got.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), got.SpanID())
}
