// Package tailer реализует долгоживущий консьюмер, который читает лог событий
// пакетами, передает декодированные события обработчику и фиксирует позицию
// группы после обработки всего пакета (доставка at-least-once).
package tailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/metrics"
	"github.com/akriventsev/bookshelf/framework/observability"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DecodeFailurePolicy поведение при записи, которую не удалось декодировать
type DecodeFailurePolicy string

const (
	// DecodeAbort переводит консьюмер в Faulted
	DecodeAbort DecodeFailurePolicy = "abort"
	// DecodeSkip пропускает запись; она фиксируется вместе с пакетом
	DecodeSkip DecodeFailurePolicy = "skip"
)

// ErrStopped возвращается Run для консьюмера, уже остановленного отменой
var ErrStopped = errors.New("tailer: consumer stopped")

// Config конфигурация консьюмера
type Config struct {
	Name                string
	PollInterval        time.Duration
	PollTimeout         time.Duration
	CommitTimeout       time.Duration
	PollRetries         uint64
	PollBackoff         time.Duration
	DecodeFailurePolicy DecodeFailurePolicy
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Name:                "tailer",
		PollInterval:        time.Second,
		PollTimeout:         10 * time.Second,
		CommitTimeout:       10 * time.Second,
		PollRetries:         3,
		PollBackoff:         200 * time.Millisecond,
		DecodeFailurePolicy: DecodeAbort,
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive")
	}
	if c.CommitTimeout <= 0 {
		return fmt.Errorf("commit timeout must be positive")
	}
	switch c.DecodeFailurePolicy {
	case DecodeAbort, DecodeSkip:
	default:
		return fmt.Errorf("unknown decode failure policy: %q", c.DecodeFailurePolicy)
	}
	return nil
}

// Option опция консьюмера
type Option func(*options)

type options struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	onTransition func(from, to State)
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer задает tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithOnTransition задает хук, вызываемый при каждой смене состояния
func WithOnTransition(fn func(from, to State)) Option {
	return func(o *options) { o.onTransition = fn }
}

// Consumer консьюмер лога событий типа E
type Consumer[E any] struct {
	config  Config
	reader  eventlog.Reader
	decode  Decoder[E]
	handler Handler[E]
	opts    options
	logger  *slog.Logger

	state   atomic.Int32
	running atomic.Bool
	mu      sync.Mutex
	fault   error
}

// New создает консьюмер
func New[E any](reader eventlog.Reader, decode Decoder[E], handler Handler[E], config Config, opts ...Option) (*Consumer[E], error) {
	if reader == nil || decode == nil || handler == nil {
		return nil, core.NewError(core.ErrInvalidArgument, "reader, decoder and handler are required")
	}
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid consumer config")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(observability.TracerName)
	}

	c := &Consumer[E]{
		config:  config,
		reader:  reader,
		decode:  decode,
		handler: handler,
		opts:    o,
		logger:  o.logger.With(slog.String("component", "tailer"), slog.String("consumer", config.Name)),
	}
	c.state.Store(int32(Idle))
	return c, nil
}

// State возвращает текущее состояние; безопасно для конкурентного чтения
func (c *Consumer[E]) State() State {
	return State(c.state.Load())
}

// Fault возвращает ошибку, переведшую консьюмер в Faulted
func (c *Consumer[E]) Fault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault
}

// Name возвращает имя консьюмера
func (c *Consumer[E]) Name() string {
	return c.config.Name
}

// Type возвращает тип компонента
func (c *Consumer[E]) Type() core.ComponentType {
	return core.ComponentTypeConsumer
}

// Check реализует health check: консьюмер здоров, пока не упал
func (c *Consumer[E]) Check(ctx context.Context) error {
	return c.Fault()
}

func (c *Consumer[E]) transition(to State) error {
	from := c.State()
	if !CanTransition(from, to) {
		return transitionError(from, to)
	}
	c.state.Store(int32(to))
	if c.opts.onTransition != nil {
		c.opts.onTransition(from, to)
	}
	return nil
}

func (c *Consumer[E]) fail(err error) error {
	c.mu.Lock()
	c.fault = err
	c.mu.Unlock()

	from := c.State()
	c.state.Store(int32(Faulted))
	if c.opts.onTransition != nil {
		c.opts.onTransition(from, Faulted)
	}
	c.logger.Error("consumer faulted", slog.String("state", from.String()), slog.Any("error", err))
	return err
}

func (c *Consumer[E]) stop() error {
	if err := c.transition(Stopped); err != nil {
		return c.fail(err)
	}
	c.logger.Info("consumer stopped")
	return nil
}

// Run крутит цикл poll / process / commit до отмены ctx или ошибки.
// Возвращает nil при отмене (состояние Stopped) и ошибку при сбое
// (состояние Faulted). Повторный запуск упавшего консьюмера возвращает ту же ошибку.
func (c *Consumer[E]) Run(ctx context.Context) error {
	if err := c.Fault(); err != nil {
		return err
	}
	if c.State() == Stopped {
		return ErrStopped
	}
	if !c.running.CompareAndSwap(false, true) {
		return core.NewError(core.ErrInvalidArgument, "consumer is already running")
	}
	defer c.running.Store(false)

	c.logger.Info("consumer started",
		slog.Duration("poll_interval", c.config.PollInterval),
		slog.String("decode_failure_policy", string(c.config.DecodeFailurePolicy)))

	for {
		if ctx.Err() != nil {
			return c.stop()
		}

		if err := c.transition(Polling); err != nil {
			return c.fail(err)
		}
		batch, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.stop()
			}
			return c.fail(err)
		}

		if len(batch) == 0 {
			if err := c.transition(Idle); err != nil {
				return c.fail(err)
			}
			if !sleep(ctx, c.config.PollInterval) {
				return c.stop()
			}
			continue
		}

		if err := c.transition(Processing); err != nil {
			return c.fail(err)
		}
		handled, err := c.process(ctx, batch)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return c.stop()
			}
			return c.fail(err)
		}

		if err := c.transition(Committing); err != nil {
			return c.fail(err)
		}
		if err := c.commit(ctx, batch); err != nil {
			if c.opts.metrics != nil {
				c.opts.metrics.RecordCommitError(ctx, c.config.Name)
			}
			return c.fail(err)
		}
		if c.opts.metrics != nil {
			c.opts.metrics.RecordBatch(ctx, c.config.Name, handled)
		}

		if err := c.transition(Idle); err != nil {
			return c.fail(err)
		}
	}
}

func (c *Consumer[E]) poll(ctx context.Context) ([]eventlog.Record, error) {
	backoff := retry.WithMaxRetries(c.config.PollRetries, retry.NewExponential(c.pollBackoff()))

	var batch []eventlog.Record
	start := time.Now()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
		defer cancel()

		records, err := c.reader.Poll(pollCtx)
		if err == nil {
			batch = records
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = core.Wrap(err, core.ErrTransport, "poll timed out")
		}
		if core.HasCode(err, core.ErrTransport) {
			c.logger.Warn("poll failed, retrying", slog.Any("error", err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !core.HasCode(err, core.ErrTransport) {
			err = core.Wrap(err, core.ErrTransport, "poll failed")
		}
		return nil, err
	}

	if c.opts.metrics != nil {
		c.opts.metrics.RecordPoll(ctx, c.config.Name, time.Since(start), len(batch))
	}
	return batch, nil
}

func (c *Consumer[E]) pollBackoff() time.Duration {
	if c.config.PollBackoff > 0 {
		return c.config.PollBackoff
	}
	return 200 * time.Millisecond
}

// process передает записи обработчику по порядку; возвращает число обработанных
func (c *Consumer[E]) process(ctx context.Context, batch []eventlog.Record) (int, error) {
	ctx, span := c.opts.tracer.Start(ctx, "tailer.batch", trace.WithAttributes(
		attribute.String("consumer", c.config.Name),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	handled := 0
	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		event, err := c.decode(rec.Value)
		if err != nil {
			if !core.HasCode(err, core.ErrSerialization) {
				err = core.Wrap(err, core.ErrSerialization, "failed to decode record")
			}
			if c.config.DecodeFailurePolicy == DecodeSkip {
				c.logger.Warn("skipping undecodable record", slog.String("record", rec.Ref()), slog.Any("error", err))
				if c.opts.metrics != nil {
					c.opts.metrics.RecordSkipped(ctx, c.config.Name, "decode")
				}
				continue
			}
			span.RecordError(err)
			return handled, fmt.Errorf("record %s: %w", rec.Ref(), err)
		}

		delivery := Delivery[E]{Record: rec, Event: event}
		if err := c.handle(ctx, delivery); err != nil {
			span.RecordError(err)
			return handled, fmt.Errorf("handle %s: %w", rec.Ref(), err)
		}
		handled++
	}
	return handled, nil
}

func (c *Consumer[E]) handle(ctx context.Context, d Delivery[E]) error {
	remote := observability.ExtractHeaders(ctx, d.Record.Headers)
	link := trace.LinkFromContext(remote)
	ctx, span := c.opts.tracer.Start(ctx, "tailer.handle",
		trace.WithLinks(link),
		trace.WithAttributes(
			attribute.String("record", d.Record.Ref()),
			attribute.String("event.id", d.EventID()),
		))
	defer span.End()

	err := c.handler.Handle(ctx, d)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// commit фиксирует позицию за пакетом. Отмена ctx не прерывает фиксацию
// уже обработанного пакета, ее ограничивает только CommitTimeout.
func (c *Consumer[E]) commit(ctx context.Context, batch []eventlog.Record) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.CommitTimeout)
	defer cancel()

	if err := c.reader.Commit(commitCtx, batch); err != nil {
		if !core.HasCode(err, core.ErrOffsetCommit) {
			err = core.Wrap(err, core.ErrOffsetCommit, "failed to commit batch")
		}
		return err
	}
	c.logger.Debug("batch committed",
		slog.Int("records", len(batch)),
		slog.String("last", batch[len(batch)-1].Ref()))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
