// =============================================================================
// 📡 crewcheck 链路追踪与指标导出
// =============================================================================
// 为 crew.run / crew.execute / crew.task 等 span 配置 OTLP gRPC 导出。
// 关闭时不创建任何导出器，全局 provider 保持 noop。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/crewcheck/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Resource attribute keys describing how a run was wired.
const (
	CapabilityModeKey = attribute.Key("crewcheck.capability.mode")
	SinkTypeKey       = attribute.Key("crewcheck.sink.type")
)

// Providers owns the SDK providers of one CLI process. A disabled Providers
// has nil providers and every method is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init installs tracing and metric export when cfg.Enabled. attrs are added
// to the resource of every exported span, e.g. CapabilityModeKey.String("replay").
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger, attrs ...attribute.KeyValue) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"))
	if !cfg.Enabled {
		logger.Debug("telemetry disabled")
		return &Providers{}, nil
	}

	spans, reader, err := otlpExporters(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	p, err := initWith(ctx, cfg, spans, reader, attrs...)
	if err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", serviceName(cfg)),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

// otlpExporters dials nothing: the gRPC exporters connect lazily on first export.
func otlpExporters(ctx context.Context, endpoint string) (sdktrace.SpanExporter, sdkmetric.Reader, error) {
	spans, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), spans.Shutdown(ctx))
	}
	return spans, sdkmetric.NewPeriodicReader(metrics), nil
}

func initWith(ctx context.Context, cfg config.TelemetryConfig, spans sdktrace.SpanExporter, reader sdkmetric.Reader, attrs ...attribute.KeyValue) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes(append([]attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName(cfg)),
		semconv.ServiceVersionKey.String(Version()),
	}, attrs...)...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	p := &Providers{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
	}
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	// the HTTP capability injects trace context into backend requests
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName == "" {
		return "crewcheck"
	}
	return cfg.ServiceName
}

// ForceFlush exports buffered spans. Watch mode calls it after every run.
func (p *Providers) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes and closes both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Version is the module version from build info, or "dev" for local builds.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
