package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "timesheet"
	serviceVersion = "1.0.0"
)

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint string
	Enabled  bool
	Insecure bool
}

// Exporter records sheet metrics and ships them to an OTEL collector.
type Exporter struct {
	provider       *sdkmetric.MeterProvider
	writesTotal    metric.Int64Counter
	loadsTotal     metric.Int64Counter
	documentsGauge metric.Int64Histogram
	minutesHist    metric.Int64Histogram
}

// NewExporter creates an exporter pushing over OTLP/gRPC.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	e, err := newExporter(ctx, sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

func newExporter(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	writesTotal, err := meter.Int64Counter(
		"timesheet_session_writes_total",
		metric.WithDescription("Session document writes by operation and outcome"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating writes counter: %w", err)
	}

	loadsTotal, err := meter.Int64Counter(
		"timesheet_snapshot_loads_total",
		metric.WithDescription("Snapshot loads by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating loads counter: %w", err)
	}

	documentsGauge, err := meter.Int64Histogram(
		"timesheet_snapshot_documents",
		metric.WithDescription("Documents per loaded snapshot"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating documents histogram: %w", err)
	}

	minutesHist, err := meter.Int64Histogram(
		"timesheet_session_minutes",
		metric.WithDescription("Tracked minutes per saved session"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating minutes histogram: %w", err)
	}

	return &Exporter{
		provider:       provider,
		writesTotal:    writesTotal,
		loadsTotal:     loadsTotal,
		documentsGauge: documentsGauge,
		minutesHist:    minutesHist,
	}, nil
}

func outcome(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("outcome", "ok")
	}
	return attribute.String("outcome", "error")
}

// RecordWrite counts a create, update or delete.
func (e *Exporter) RecordWrite(ctx context.Context, op string, ok bool) {
	e.writesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), outcome(ok)))
}

// RecordLoad counts a snapshot load and, on success, its size.
func (e *Exporter) RecordLoad(ctx context.Context, ok bool, documents int) {
	e.loadsTotal.Add(ctx, 1, metric.WithAttributes(outcome(ok)))
	if ok {
		e.documentsGauge.Record(ctx, int64(documents))
	}
}

// RecordSessionMinutes records the total of a saved session.
func (e *Exporter) RecordSessionMinutes(ctx context.Context, minutes int) {
	e.minutesHist.Record(ctx, int64(minutes))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
