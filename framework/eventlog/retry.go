package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/sethvargo/go-retry"
)

// RetryConfig ограниченный повтор Append с экспоненциальной задержкой
type RetryConfig struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig возвращает конфигурацию повторов по умолчанию
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Backoff строит политику повторов go-retry
func (c RetryConfig) Backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	var retries uint64
	if c.MaxAttempts > 1 {
		retries = c.MaxAttempts - 1
	}
	return retry.WithMaxRetries(retries, b)
}

// RetryingAppender повторяет Append при ошибках транспорта.
// Повтор может продублировать уже принятые брокером записи; читатели
// дедуплицируют их по заголовку event-id.
type RetryingAppender struct {
	next   Appender
	config RetryConfig
	logger *slog.Logger
}

// NewRetryingAppender оборачивает appender
func NewRetryingAppender(next Appender, config RetryConfig, logger *slog.Logger) *RetryingAppender {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingAppender{next: next, config: config, logger: logger}
}

// Append делегирует запись, повторяя только TRANSPORT_ERROR
func (a *RetryingAppender) Append(ctx context.Context, topic string, records ...Record) error {
	attempt := 0
	err := retry.Do(ctx, a.config.Backoff(), func(ctx context.Context) error {
		attempt++
		err := a.next.Append(ctx, topic, records...)
		if err == nil {
			return nil
		}
		if core.HasCode(err, core.ErrTransport) {
			a.logger.Warn("append failed, retrying",
				slog.String("topic", topic),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && attempt > 1 && core.HasCode(err, core.ErrTransport) {
		return core.Wrap(err, core.ErrTransport, fmt.Sprintf("append failed after %d attempts", attempt))
	}
	return err
}

// Close закрывает вложенный appender
func (a *RetryingAppender) Close() error {
	return a.next.Close()
}
