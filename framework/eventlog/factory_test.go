package eventlog

import (
	"context"
	"testing"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendInMemory
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty backend", func(c *Config) { c.Backend = "" }},
		{"empty topic", func(c *Config) { c.Topic = "" }},
		{"empty group", func(c *Config) { c.Group = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestFactory_InMemoryBackendSharesLog(t *testing.T) {
	f, err := NewFactory(memoryConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	appender, err := f.NewAppender(ctx)
	require.NoError(t, err)
	_, retrying := appender.(*RetryingAppender)
	assert.True(t, retrying)

	require.NoError(t, appender.Append(ctx, "books", rec("a")))

	reader, err := f.NewReader(ctx)
	require.NoError(t, err)
	batch, err := reader.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Len(t, f.Memory().Records("books"), 1)
}

func TestFactory_WithoutRetry(t *testing.T) {
	cfg := memoryConfig()
	cfg.Retry.MaxAttempts = 1
	f, err := NewFactory(cfg, nil)
	require.NoError(t, err)

	appender, err := f.NewAppender(context.Background())
	require.NoError(t, err)
	assert.Same(t, f.Memory(), appender)
}

func TestFactory_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "carrier-pigeon"
	f, err := NewFactory(cfg, nil)
	require.NoError(t, err)

	_, err = f.NewAppender(context.Background())
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
	_, err = f.NewReader(context.Background())
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
}

func TestFactory_Register(t *testing.T) {
	f, err := NewFactory(memoryConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{BackendInMemory, BackendKafka, BackendNATS, BackendRedis}, f.Backends())

	err = f.Register(BackendKafka, Backend{
		NewAppender: func(context.Context, Config) (Appender, error) { return nil, nil },
		NewReader:   func(context.Context, Config) (Reader, error) { return nil, nil },
	})
	assert.True(t, core.HasCode(err, core.ErrInvalidArgument))

	err = f.Register("broken", Backend{})
	assert.True(t, core.HasCode(err, core.ErrInvalidArgument))
}

func TestNewFactory_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Topic = ""
	_, err := NewFactory(cfg, nil)
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
}
