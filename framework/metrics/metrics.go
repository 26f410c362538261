// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName имя meter приложения
const MeterName = "bookshelf"

// Metrics сборщик метрик журнала событий, репозитория и консьюмера
type Metrics struct {
	meter             metric.Meter
	eventsAppended    metric.Int64Counter
	appendDuration    metric.Float64Histogram
	snapshotWrites    metric.Int64Counter
	batchesProcessed  metric.Int64Counter
	recordsProcessed  metric.Int64Counter
	recordsSkipped    metric.Int64Counter
	commitErrors      metric.Int64Counter
	errorsTotal       metric.Int64Counter
	pollDuration      metric.Float64Histogram
}

// NewMetrics создает сборщик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider создает сборщик на указанном MeterProvider
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(MeterName)
	m := &Metrics{meter: meter}

	var err error
	if m.eventsAppended, err = meter.Int64Counter(
		"events_appended_total",
		metric.WithDescription("Total number of events appended to the log"),
	); err != nil {
		return nil, err
	}

	if m.appendDuration, err = meter.Float64Histogram(
		"append_duration_seconds",
		metric.WithDescription("Log append duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.snapshotWrites, err = meter.Int64Counter(
		"snapshot_writes_total",
		metric.WithDescription("Total number of snapshot writes"),
	); err != nil {
		return nil, err
	}

	if m.batchesProcessed, err = meter.Int64Counter(
		"batches_processed_total",
		metric.WithDescription("Total number of committed consumer batches"),
	); err != nil {
		return nil, err
	}

	if m.recordsProcessed, err = meter.Int64Counter(
		"records_processed_total",
		metric.WithDescription("Total number of records handled by the consumer"),
	); err != nil {
		return nil, err
	}

	if m.recordsSkipped, err = meter.Int64Counter(
		"records_skipped_total",
		metric.WithDescription("Total number of records skipped by the consumer"),
	); err != nil {
		return nil, err
	}

	if m.commitErrors, err = meter.Int64Counter(
		"commit_errors_total",
		metric.WithDescription("Total number of failed offset commits"),
	); err != nil {
		return nil, err
	}

	if m.errorsTotal, err = meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	); err != nil {
		return nil, err
	}

	if m.pollDuration, err = meter.Float64Histogram(
		"poll_duration_seconds",
		metric.WithDescription("Consumer poll duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAppend записывает метрики одного Append
func (m *Metrics) RecordAppend(ctx context.Context, eventTypes []string, duration time.Duration, success bool) {
	m.appendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
	if !success {
		m.RecordError(ctx, "repository", "append")
		return
	}
	for _, eventType := range eventTypes {
		m.eventsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}

// RecordSnapshotWrite записывает метрику записи снапшота
func (m *Metrics) RecordSnapshotWrite(ctx context.Context, success bool) {
	m.snapshotWrites.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if !success {
		m.RecordError(ctx, "repository", "snapshot")
	}
}

// RecordPoll записывает длительность опроса лога
func (m *Metrics) RecordPoll(ctx context.Context, consumer string, duration time.Duration, records int) {
	m.pollDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("consumer", consumer),
		attribute.Bool("empty", records == 0),
	))
}

// RecordBatch записывает метрики зафиксированного пакета
func (m *Metrics) RecordBatch(ctx context.Context, consumer string, handled int) {
	attrs := metric.WithAttributes(attribute.String("consumer", consumer))
	m.batchesProcessed.Add(ctx, 1, attrs)
	m.recordsProcessed.Add(ctx, int64(handled), attrs)
}

// RecordSkipped записывает пропущенную запись
func (m *Metrics) RecordSkipped(ctx context.Context, consumer, reason string) {
	m.recordsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consumer", consumer),
		attribute.String("reason", reason),
	))
}

// RecordCommitError записывает неудачную фиксацию позиции
func (m *Metrics) RecordCommitError(ctx context.Context, consumer string) {
	m.commitErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("consumer", consumer)))
	m.RecordError(ctx, "tailer", "commit")
}

// RecordError записывает ошибку компонента
func (m *Metrics) RecordError(ctx context.Context, component, operation string) {
	m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("operation", operation),
	))
}
