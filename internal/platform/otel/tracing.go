package otel

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

type Options struct {
	ServiceName string
	Environment string
	Writer      io.Writer
}

// InitTracer installs a global tracer provider exporting spans to opts.Writer.
// Returns a shutdown function to call on application exit.
func InitTracer(ctx context.Context, opts Options, logger *zap.Logger) (func(context.Context) error, error) {
	// stdout exporter; swap for OTLP when a collector is available
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(opts.Writer),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	// no merge with resource.Default() to avoid schema URL conflicts
	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.DeploymentEnvironment(opts.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry tracer initialized",
		zap.String("service", opts.ServiceName),
		zap.String("env", opts.Environment),
	)

	return tp.Shutdown, nil
}
