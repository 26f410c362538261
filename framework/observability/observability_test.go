package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestHeadersRoundTrip(t *testing.T) {
	_, err := NewTracingManager(DefaultTracingConfig())
	require.NoError(t, err)

	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "save")
	defer span.End()

	headers := map[string]string{}
	InjectHeaders(ctx, headers)
	require.Contains(t, headers, "traceparent")

	extracted := ExtractHeaders(context.Background(), headers)
	sc := trace.SpanContextFromContext(extracted)
	assert.True(t, sc.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
}

func TestExtractHeaders_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractHeaders(ctx, nil))
}

func TestTrace_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	boom := errors.New("boom")

	err := Trace(context.Background(), provider.Tracer("test"), "repository.save", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "repository.save", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}

func TestNewTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(DefaultTracingConfig())
	require.NoError(t, err)
	assert.NotNil(t, tm.Tracer())

	require.NoError(t, tm.Start(context.Background()))
	assert.True(t, tm.IsRunning())
	require.NoError(t, tm.Stop(context.Background()))
	assert.False(t, tm.IsRunning())
}

func TestNewTracingManager_UnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "carrier-pigeon"
	_, err := NewTracingManager(cfg)
	assert.Error(t, err)
}

func TestHealthRegistry_Handlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewHealthRegistry(0)
	registry.RegisterHealthCheck(NewFuncCheck("store", func(ctx context.Context) error { return nil }))
	consumerErr := errors.New("consumer faulted")
	var failing bool
	registry.RegisterHealthCheck(NewFuncCheck("consumer", func(ctx context.Context) error {
		if failing {
			return consumerErr
		}
		return nil
	}))
	registry.RegisterReadinessCheck(NewFuncCheck("consumer", func(ctx context.Context) error {
		if failing {
			return consumerErr
		}
		return nil
	}))

	router := gin.New()
	router.GET("/healthz", registry.HealthCheckHandler())
	router.GET("/readyz", registry.ReadinessCheckHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	failing = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var result HealthCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "unhealthy", result.Status)
	assert.Equal(t, "consumer faulted", result.Checks["consumer"].Message)
	assert.Equal(t, "healthy", result.Checks["store"].Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
