package observe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "learnchars"

// Resource attribute keys describing the recognition chain.
const (
	AttrSTTProvider  = attribute.Key("learnchars.stt.provider")
	AttrSTTFallbacks = attribute.Key("learnchars.stt.fallbacks")
)

// ProviderConfig configures [InitProvider].
type ProviderConfig struct {
	// ServiceVersion defaults to the main module version from the build info.
	ServiceVersion string

	// STTProvider and STTFallbacks name the configured recognition backends
	// in trial order. They are reported on every exported series via the
	// Prometheus target_info metric.
	STTProvider  string
	STTFallbacks []string

	// Registerer receives the Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer, which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// TraceExporter is optional. When nil, spans are recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// NewResource builds the telemetry resource for cfg.
func NewResource(cfg ProviderConfig) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			version = bi.Main.Version
		}
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	}
	if cfg.STTProvider != "" {
		attrs = append(attrs, AttrSTTProvider.String(cfg.STTProvider))
	}
	if len(cfg.STTFallbacks) > 0 {
		attrs = append(attrs, AttrSTTFallbacks.StringSlice(cfg.STTFallbacks))
	}
	// Schemaless so the merge adopts the SDK default's schema URL.
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// InitProvider installs a Prometheus-backed meter provider and a tracer
// provider as the OTel globals. The returned shutdown flushes and closes both.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := NewResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp))
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}
