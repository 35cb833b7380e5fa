// Package rtelemetry wraps OpenTelemetry spans around pipeline phases and
// subprocess invocations, mirroring the teacher's telemetry.Trace(opts,
// name, attrs, fn) contract.
package rtelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/abrt/retrace-worker"

// Init installs a no-op tracer provider when enabled is false, or an SDK
// provider otherwise. The SDK provider has no span processor or exporter
// registered, so its spans are not exported anywhere. Callers should
// defer the returned shutdown function.
func Init(ctx context.Context, enabled bool) (shutdown func(context.Context) error, err error) {
	if !enabled {
		otel.SetTracerProvider(oteltrace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Trace runs fn inside a span named name, recording attrs as span
// attributes and the returned error (if any) as the span status.
func Trace(ctx context.Context, name string, attrs map[string]interface{}, fn func(ctx context.Context) error) error {
	tracer := otel.Tracer(tracerName)

	spanAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		spanAttrs = append(spanAttrs, toAttr(k, v))
	}

	ctx, span := tracer.Start(ctx, name, oteltrace.WithAttributes(spanAttrs...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func toAttr(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, "")
	}
}
