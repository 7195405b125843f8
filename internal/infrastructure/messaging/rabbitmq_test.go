package messaging

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04, 0x05},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	prop := propagation.TraceContext{}
	headers := amqp.Table{}
	prop.Inject(ctx, headerCarrier(headers))

	assert.Contains(t, headerCarrier(headers).Keys(), "traceparent")

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), headerCarrier(headers)))
	assert.Equal(t, spanCtx.TraceID(), extracted.TraceID())
	assert.Equal(t, spanCtx.SpanID(), extracted.SpanID())
}

func TestHeaderCarrier_IgnoresNonStringValues(t *testing.T) {
	c := headerCarrier(amqp.Table{"x-count": int32(3)})
	assert.Empty(t, c.Get("x-count"))
	assert.Empty(t, c.Get("missing"))
}
