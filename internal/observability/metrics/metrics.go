package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the ingestion engine.
type Metrics struct {
	filesIngested       metric.Int64Counter
	recordsIngested     metric.Int64Counter
	recordsSuperseded   metric.Int64Counter
	unrecognizedFormats metric.Int64Counter
	reconciliationRuns  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "usagemetrics"
	}
	meter := provider.Meter(name)

	filesIngested, err := meter.Int64Counter("usagemetrics_files_ingested_total")
	if err != nil {
		return nil, err
	}
	recordsIngested, err := meter.Int64Counter("usagemetrics_records_ingested_total")
	if err != nil {
		return nil, err
	}
	recordsSuperseded, err := meter.Int64Counter("usagemetrics_records_superseded_total")
	if err != nil {
		return nil, err
	}
	unrecognizedFormats, err := meter.Int64Counter("usagemetrics_unrecognized_formats_total")
	if err != nil {
		return nil, err
	}
	reconciliationRuns, err := meter.Int64Counter("usagemetrics_reconciliation_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		filesIngested:       filesIngested,
		recordsIngested:     recordsIngested,
		recordsSuperseded:   recordsSuperseded,
		unrecognizedFormats: unrecognizedFormats,
		reconciliationRuns:  reconciliationRuns,
	}, nil
}

// RecordFileIngested increments per-file ingestion counts.
func (m *Metrics) RecordFileIngested(ctx context.Context, toolSource string) {
	if m == nil {
		return
	}
	m.filesIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_source", strings.TrimSpace(toolSource)),
	))
}

// RecordIngested counts inserted and replaced records for one batch.
func (m *Metrics) RecordIngested(ctx context.Context, toolSource string, inserted int, replaced int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool_source", strings.TrimSpace(toolSource)))
	m.recordsIngested.Add(ctx, int64(inserted), attrs)
	m.recordsSuperseded.Add(ctx, replaced, attrs)
}

// RecordUnrecognizedFormat counts classification failures.
func (m *Metrics) RecordUnrecognizedFormat(ctx context.Context) {
	if m == nil {
		return
	}
	m.unrecognizedFormats.Add(ctx, 1)
}

// RecordReconciliationRun counts validator runs by outcome.
func (m *Metrics) RecordReconciliationRun(ctx context.Context, passed bool) {
	if m == nil {
		return
	}
	m.reconciliationRuns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("passed", passed)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
