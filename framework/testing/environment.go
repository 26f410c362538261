// Package testing предоставляет утилиты для тестирования приложений на базе фреймворка.
package testing

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/kvstore"
	"github.com/akriventsev/bookshelf/framework/metrics"
)

// InMemoryTestEnvironment тестовая среда с готовыми in-memory компонентами
type InMemoryTestEnvironment struct {
	Topic       string
	Group       string
	Log         *eventlog.InMemoryLog
	Snapshots   *kvstore.InMemoryStore
	Projections *kvstore.InMemoryStore
	Metrics     *metrics.Metrics

	metricReader *sdkmetric.ManualReader
	provider     *sdkmetric.MeterProvider
}

// NewInMemoryTestEnvironment создает новую тестовую среду с готовыми компонентами.
// Метрики пишутся в изолированный MeterProvider и читаются через Counter.
// Если создание метрик завершается с ошибкой, тест завершается с t.Fatalf
func NewInMemoryTestEnvironment(t *testing.T) *InMemoryTestEnvironment {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.NewMetricsWithProvider(provider)
	if err != nil {
		t.Fatalf("failed to create test metrics: %v", err)
	}

	env := &InMemoryTestEnvironment{
		Topic:        "books",
		Group:        "books-tail",
		Log:          eventlog.NewInMemoryLog(),
		Snapshots:    kvstore.NewInMemoryStore(),
		Projections:  kvstore.NewInMemoryStore(),
		Metrics:      m,
		metricReader: reader,
		provider:     provider,
	}
	t.Cleanup(func() { _ = env.Shutdown(context.Background()) })
	return env
}

// NewReader создает читателя группы окружения; новый читатель
// продолжает с зафиксированной позиции, как перезапущенный процесс
func (e *InMemoryTestEnvironment) NewReader(batchSize int) *eventlog.InMemoryReader {
	return e.Log.NewReader(e.Topic, e.Group, batchSize)
}

// Counter возвращает сумму int64 счетчика по всем атрибутам
func (e *InMemoryTestEnvironment) Counter(t *testing.T, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := e.metricReader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// Shutdown корректно завершает работу тестовой среды
func (e *InMemoryTestEnvironment) Shutdown(ctx context.Context) error {
	_ = e.Log.Close()
	_ = e.Snapshots.Close()
	_ = e.Projections.Close()
	return e.provider.Shutdown(ctx)
}
