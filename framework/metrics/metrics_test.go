package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetricsWithProvider(provider)
	require.NoError(t, err)
	return m, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_RecordAppend(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAppend(ctx, []string{"Created", "PageAdded"}, 5*time.Millisecond, true)
	m.RecordAppend(ctx, []string{"PageAdded"}, time.Millisecond, false)

	assert.Equal(t, int64(2), sumOf(t, reader, "events_appended_total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "errors_total"))
}

func TestMetrics_ConsumerCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBatch(ctx, "books-tail", 3)
	m.RecordBatch(ctx, "books-tail", 2)
	m.RecordSkipped(ctx, "books-tail", "decode")
	m.RecordCommitError(ctx, "books-tail")
	m.RecordSnapshotWrite(ctx, true)

	assert.Equal(t, int64(2), sumOf(t, reader, "batches_processed_total"))
	assert.Equal(t, int64(5), sumOf(t, reader, "records_processed_total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "records_skipped_total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "commit_errors_total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "snapshot_writes_total"))
}

func TestSetupMetrics(t *testing.T) {
	provider, err := SetupMetrics(&MetricsConfig{ExporterType: "none"})
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.NoError(t, ShutdownMetrics(context.Background(), provider))

	_, err = SetupMetrics(&MetricsConfig{ExporterType: "graphite"})
	assert.Error(t, err)

	assert.NoError(t, ShutdownMetrics(context.Background(), nil))
	assert.NotNil(t, Handler())
}
