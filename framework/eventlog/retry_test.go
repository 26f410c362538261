package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyAppender struct {
	failures int
	err      error
	calls    int
	log      *InMemoryLog
}

func (f *flakyAppender) Append(ctx context.Context, topic string, records ...Record) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.log.Append(ctx, topic, records...)
}

func (f *flakyAppender) Close() error { return nil }

func fastRetry(attempts uint64) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryingAppender_RecoversFromTransportErrors(t *testing.T) {
	next := &flakyAppender{
		failures: 2,
		err:      core.NewError(core.ErrTransport, "broker unavailable"),
		log:      NewInMemoryLog(),
	}
	appender := NewRetryingAppender(next, fastRetry(3), nil)

	require.NoError(t, appender.Append(context.Background(), "books", rec("a")))
	assert.Equal(t, 3, next.calls)
	assert.Len(t, next.log.Records("books"), 1)
}

func TestRetryingAppender_GivesUp(t *testing.T) {
	next := &flakyAppender{
		failures: 10,
		err:      core.NewError(core.ErrTransport, "broker unavailable"),
		log:      NewInMemoryLog(),
	}
	appender := NewRetryingAppender(next, fastRetry(3), nil)

	err := appender.Append(context.Background(), "books", rec("a"))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrTransport))
	assert.Equal(t, 3, next.calls)
}

func TestRetryingAppender_DoesNotRetryOtherErrors(t *testing.T) {
	next := &flakyAppender{
		failures: 10,
		err:      errors.New("bad request"),
		log:      NewInMemoryLog(),
	}
	appender := NewRetryingAppender(next, fastRetry(5), nil)

	err := appender.Append(context.Background(), "books", rec("a"))
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
	assert.False(t, core.HasCode(err, core.ErrTransport))
}

func TestRetryConfig_SingleAttempt(t *testing.T) {
	next := &flakyAppender{
		failures: 1,
		err:      core.NewError(core.ErrTransport, "broker unavailable"),
		log:      NewInMemoryLog(),
	}
	appender := NewRetryingAppender(next, fastRetry(1), nil)

	require.Error(t, appender.Append(context.Background(), "books", rec("a")))
	assert.Equal(t, 1, next.calls)
}
