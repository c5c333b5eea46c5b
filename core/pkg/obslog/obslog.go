// Package obslog wires structured logging and distributed tracing for
// the validation engine: a slog.Logger for human/machine-readable logs,
// and an OpenTelemetry tracer for per-probe spans.
package obslog

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the logging and tracing providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	LogLevel       string
	SampleRate     float64 // 0.0 to 1.0; 1.0 samples every run
}

// DefaultConfig returns sensible defaults for running the engine locally.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "bpvalidate",
		ServiceVersion: "dev",
		LogLevel:       "INFO",
		SampleRate:     1.0,
	}
}

// Provider bundles the logger and tracer a validation run is threaded
// through.
type Provider struct {
	Logger         *slog.Logger
	Tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
}

// New builds a Provider from cfg. Traces are sampled but not exported
// anywhere: the TracerProvider is built without a span exporter.
func New(cfg Config) *Provider {
	level := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.ServiceName, "version", cfg.ServiceVersion)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		Logger:         logger,
		Tracer:         tp.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		tracerProvider: tp,
	}
}

// Shutdown flushes and stops the tracer provider. Safe to call on a
// Provider built without an exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tracerProvider.Shutdown(ctx)
}

// StartProbe starts a span for one probe invocation (URL validation,
// API sub-test, TLS scan, ...), tagging it with class and target so
// traces line up with the finding stream's own classification.
func (p *Provider) StartProbe(ctx context.Context, name, class, target string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("bpvalidate.class", class),
		attribute.String("bpvalidate.target", target),
	))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
