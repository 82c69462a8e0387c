package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "rehearse".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter

	// TraceSampleRatio is the fraction of root traces sampled. Zero or
	// negative samples everything.
	TraceSampleRatio float64
}

// Telemetry is the result of [InitProvider].
type Telemetry struct {
	// MetricsHandler serves the Prometheus text exposition format.
	MetricsHandler http.Handler

	// Shutdown flushes and closes exporters. Call it from main on exit.
	Shutdown func(context.Context) error
}

// InitProvider initialises the OTel SDK with the given config. It sets up:
//
//   - A [sdkmetric.MeterProvider] backed by a Prometheus exporter that
//     registers on a dedicated registry served by [Telemetry.MetricsHandler].
//   - A [sdktrace.TracerProvider] with the configured exporter (or no export
//     if none is provided).
//
// Both providers are registered as the global OTel providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rehearse"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	// --- Metrics: Prometheus exporter bridge ---
	reg := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	// --- Traces ---
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if cfg.TraceSampleRatio > 0 && cfg.TraceSampleRatio < 1 {
		tpOpts = append(tpOpts, sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio)),
		))
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	return &Telemetry{
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Shutdown: func(ctx context.Context) error {
			var errs []error
			for _, fn := range shutdownFuncs {
				if e := fn(ctx); e != nil {
					errs = append(errs, e)
				}
			}
			return errors.Join(errs...)
		},
	}, nil
}
