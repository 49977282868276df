// Package observability wires OpenTelemetry metrics for the verification
// pipeline. Metrics are collected through an in-process reader; hosts that
// want an exporter attach their own reader when constructing Metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	serviceName  = "datanet"
	meterName    = "datanet.pipeline"
	meterVersion = "1.0.0"
)

// Metrics holds the pipeline's instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	logger   *slog.Logger

	callCounter        metric.Int64Counter
	validationFailures metric.Int64Counter
	jobDuration        metric.Float64Histogram
	searchLatency      metric.Float64Histogram
	indexedDocuments   metric.Int64UpDownCounter
}

// New builds a Metrics instance backed by its own meter provider. readers is
// optional; tests pass a ManualReader, production typically a PeriodicReader.
func New(serviceVersion string, readers ...sdkmetric.Reader) (*Metrics, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	provider := sdkmetric.NewMeterProvider(opts...)

	m := &Metrics{
		provider: provider,
		logger:   slog.Default().With("component", "observability"),
	}
	meter := provider.Meter(meterName, metric.WithInstrumentationVersion(meterVersion))

	m.callCounter, err = meter.Int64Counter("datanet.calls.total",
		metric.WithDescription("Pipeline operations invoked"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.validationFailures, err = meter.Int64Counter("datanet.validation.failures.total",
		metric.WithDescription("Claim records rejected by validation, by failure code"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.jobDuration, err = meter.Float64Histogram("datanet.job.duration",
		metric.WithDescription("End-to-end verification job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, err
	}

	m.searchLatency, err = meter.Float64Histogram("datanet.search.duration",
		metric.WithDescription("Corpus search latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5),
	)
	if err != nil {
		return nil, err
	}

	m.indexedDocuments, err = meter.Int64UpDownCounter("datanet.index.documents",
		metric.WithDescription("Documents currently held by the search index"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordCall counts one invocation of a named pipeline operation.
func (m *Metrics) RecordCall(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordValidationFailure counts one rejected record, tagged by failure code.
func (m *Metrics) RecordValidationFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordJobDuration records the wall time of one verification job.
func (m *Metrics) RecordJobDuration(ctx context.Context, d time.Duration, agreed bool) {
	if m == nil {
		return
	}
	m.jobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("agreed", agreed)))
}

// RecordSearchLatency records one corpus search.
func (m *Metrics) RecordSearchLatency(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.searchLatency.Record(ctx, d.Seconds())
}

// AddIndexedDocuments adjusts the indexed-document gauge by delta.
func (m *Metrics) AddIndexedDocuments(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.indexedDocuments.Add(ctx, delta)
}
