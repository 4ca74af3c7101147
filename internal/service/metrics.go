package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jnst/chat-backend/internal/service"

type processorMetrics struct {
	processed     metric.Int64Counter
	failed        metric.Int64Counter
	dead          metric.Int64Counter
	batchDuration metric.Float64Histogram
}

func newProcessorMetrics(provider metric.MeterProvider) (*processorMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter(meterName)

	processed, err := meter.Int64Counter(
		"outbox.messages.processed",
		metric.WithDescription("Outbox records delivered to every handler"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	failed, err := meter.Int64Counter(
		"outbox.messages.failed",
		metric.WithDescription("Outbox delivery attempts that failed and will be retried"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	dead, err := meter.Int64Counter(
		"outbox.messages.dead",
		metric.WithDescription("Outbox records that exhausted their attempts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead counter: %w", err)
	}

	batchDuration, err := meter.Float64Histogram(
		"outbox.batch.duration",
		metric.WithDescription("Time spent taking and dispatching one outbox batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	return &processorMetrics{
		processed:     processed,
		failed:        failed,
		dead:          dead,
		batchDuration: batchDuration,
	}, nil
}

func eventAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("event.name", name))
}

func (m *processorMetrics) recordProcessed(ctx context.Context, name string) {
	m.processed.Add(ctx, 1, eventAttr(name))
}

func (m *processorMetrics) recordFailed(ctx context.Context, name string) {
	m.failed.Add(ctx, 1, eventAttr(name))
}

func (m *processorMetrics) recordDead(ctx context.Context, name string) {
	m.dead.Add(ctx, 1, eventAttr(name))
}

func (m *processorMetrics) recordBatch(ctx context.Context, size int, elapsed time.Duration) {
	m.batchDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.Int("batch.size", size)))
}
