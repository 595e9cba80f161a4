package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"seedwarden/internal/domain"
)

const (
	tracerName    = "seedwarden"
	exportTimeout = 3 * time.Second
)

// exporterSettings is the OTLP setup taken from the environment.
type exporterSettings struct {
	endpoint   string // host:port
	insecure   bool
	sampleRate float64
}

// settingsFromEnv reports false when OTEL_EXPORTER_OTLP_ENDPOINT is unset.
// Plain host:port and http:// endpoints are exported without TLS.
func settingsFromEnv() (exporterSettings, bool) {
	raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if raw == "" {
		return exporterSettings{}, false
	}
	return exporterSettings{
		endpoint:   stripScheme(raw),
		insecure:   !strings.HasPrefix(raw, "https://"),
		sampleRate: parseSampleRate(),
	}, true
}

// Init installs a tracer provider exporting one trace per run. Without an
// endpoint the global no-op provider stays in place. The returned shutdown
// flushes pending spans and is never nil.
func Init(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }
	settings, ok := settingsFromEnv()
	if !ok {
		return shutdown, nil
	}

	tp, err := newProvider(ctx, serviceName, settings)
	if err != nil {
		return shutdown, fmt.Errorf("tracing disabled: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

func newProvider(ctx context.Context, serviceName string, s exporterSettings) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(s.endpoint),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	// Exported as each span ends; the process exits right after the cycle.
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(s.sampleRate)),
	), nil
}

// StartCycle opens the root span of one poll cycle.
func StartCycle(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "seedwarden.cycle", trace.WithAttributes(attrs...))
}

// EndCycle annotates span with the cycle outcome and ends it.
func EndCycle(span trace.Span, report domain.CycleReport, err error) {
	span.SetAttributes(
		attribute.Int("torrents.observed", report.Observed),
		attribute.Int("torrents.copied", report.Copied),
		attribute.Int("torrents.retired", report.Retired),
		attribute.Int("torrents.evicted", report.Evicted),
		attribute.Int64("registry.pruned", report.Pruned),
		attribute.Int("disk.free_percent", report.FreePercent),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func stripScheme(endpoint string) string {
	return strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
}

// parseSampleRate reads OTEL_TRACE_SAMPLE_RATE as a ratio in [0,1].
// Defaults to 1.
func parseSampleRate() float64 {
	raw := strings.TrimSpace(os.Getenv("OTEL_TRACE_SAMPLE_RATE"))
	if raw == "" {
		return 1
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate < 0 || rate > 1 {
		return 1
	}
	return rate
}
