// Package telemetry wires OpenTelemetry metrics and traces.
//
// When disabled, the global no-op providers stay in place and every
// instrument is a cheap no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	logx "remindbot/pkg/logx"
)

const instrumentationName = "remindbot"

type Config struct {
	Enabled        bool
	Endpoint       string // OTLP gRPC, e.g. "localhost:4317"
	ServiceName    string
	Environment    string
	ExportInterval time.Duration
}

// Provider owns the SDK providers (nil when telemetry is disabled).
type Provider struct {
	mp   *sdkmetric.MeterProvider
	tp   *sdktrace.TracerProvider
	conn *grpc.ClientConn
}

// Init sets up OTLP exporters and registers the global providers.
func Init(ctx context.Context, cfg Config, log logx.Logger) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "remindbot"
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mexp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	texp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(texp),
		sdktrace.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	log.Info("telemetry enabled", logx.String("endpoint", endpoint), logx.String("service", name))
	return &Provider{mp: mp, tp: tp, conn: conn}, nil
}

func (p *Provider) Enabled() bool { return p != nil && p.mp != nil }

func (p *Provider) Meter() metric.Meter { return otel.Meter(instrumentationName) }

func (p *Provider) Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// Shutdown flushes and stops exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	var errs []error
	if err := p.tp.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
