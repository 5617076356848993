package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: JAEGER INTEGRATION FOR DISTRIBUTED TRACING

Jaeger is a distributed tracing system originally developed by Uber.
For a collaborative canvas it answers questions like:
1. How long does an object patch take from HTTP handler to row update?
2. Which room's websocket traffic is dominating message processing?
3. Did a failed assistant request die in OpenAI or in the store?

Architecture:
  Your App → OpenTelemetry SDK → Jaeger Exporter → Jaeger Collector → Jaeger UI

OpenTelemetry is vendor-neutral, so you can swap Jaeger for other backends
(like Zipkin, Datadog, New Relic) without changing your code!
*/

// InitJaeger initializes Jaeger tracing exporter
// Returns a cleanup function that should be called on shutdown
func InitJaeger(serviceName, jaegerEndpoint string) (func(context.Context) error, error) {
	// Create Jaeger exporter
	// Learning: This sends traces to Jaeger collector
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	// Create resource with service information
	// Learning: Resource identifies your service in Jaeger UI
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider with Jaeger exporter
	// Learning: TracerProvider is the central point for creating tracers
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp), // Batch spans for efficiency
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // Sample 100% of traces (adjust for production)
	)

	// Set global tracer provider
	// Learning: This makes the tracer available throughout your app
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized: %s", jaegerEndpoint)
	log.Printf("  View traces at: http://localhost:16686 (Jaeger UI)")

	// Return cleanup function
	// Learning: Always flush traces on shutdown!
	return tp.Shutdown, nil
}

/*
SAMPLING STRATEGIES (Production Considerations)

Canvas traffic is lopsided: REST mutations are rare (debounced to ~10/s per
busy client) but every cursor move that survives the client throttle becomes
a WebSocket.ProcessMessage span, easily hundreds per second per room.

1. AlwaysSample() - Sample 100% of traces
   - ✅ Good for: Development, debugging
   - ❌ Bad for: Busy rooms (cursor spans swamp the collector!)

2. TraceIDRatioBased(0.05) - Sample 5% of traces
   - ✅ Good for: The cursor/presence firehose
   - ⚠️  May miss rare errors on the REST path

3. ParentBased(AlwaysSample()) - Follow parent's sampling decision
   - ✅ Good for: Keeping an object write and its fan-out in one trace

Example production config:
  sdktrace.WithSampler(
      sdktrace.ParentBased(
          sdktrace.TraceIDRatioBased(0.05), // 5% sampling
      ),
  )
*/
