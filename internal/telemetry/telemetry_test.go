package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/crewcheck/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewcheck-test",
		SampleRate:   0.5,
	}

	// The gRPC exporters connect lazily, so no collector is needed here.
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestInitWith_ExportsSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	exporter := tracetest.NewInMemoryExporter()
	p, err := initWith(context.Background(),
		config.TelemetryConfig{Enabled: true, SampleRate: 1},
		exporter, sdkmetric.NewManualReader(),
		CapabilityModeKey.String("replay"), SinkTypeKey.String("file"))
	require.NoError(t, err)

	_, span := otel.Tracer("crewcheck/test").Start(context.Background(), "crew.run")
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "crew.run", spans[0].Name)

	attrs := map[string]string{}
	for _, attr := range spans[0].Resource.Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "crewcheck", attrs["service.name"])
	assert.Equal(t, "replay", attrs["crewcheck.capability.mode"])
	assert.Equal(t, "file", attrs["crewcheck.sink.type"])

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestVersion(t *testing.T) {
	// test binaries report "(devel)"
	assert.Equal(t, "dev", Version())
}
