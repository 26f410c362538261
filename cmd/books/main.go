// Команда books дописывает страницу в книгу и затем читает топик книг,
// журналируя события и обновляя проекцию, до сигнала завершения.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akriventsev/bookshelf"
	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/kvstore"
	"github.com/akriventsev/bookshelf/framework/metrics"
	"github.com/akriventsev/bookshelf/framework/observability"
	"github.com/akriventsev/bookshelf/framework/tailer"
	"github.com/akriventsev/bookshelf/internal/book"
	"github.com/akriventsev/bookshelf/internal/config"
	"github.com/akriventsev/bookshelf/internal/httpapi"
	"github.com/akriventsev/bookshelf/internal/projection"
	"github.com/akriventsev/bookshelf/internal/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("BOOKS_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "books: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := metrics.SetupMetrics(cfg.MetricsSetup(bookshelf.Version))
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}
	defer shutdown(logger, "metrics", func(ctx context.Context) error {
		return metrics.ShutdownMetrics(ctx, provider)
	})
	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	tracing, err := observability.NewTracingManager(cfg.ObservabilityTracing(bookshelf.Version))
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}

	factory, err := eventlog.NewFactory(cfg.EventLog(), logger)
	if err != nil {
		return err
	}
	appender, err := factory.NewAppender(ctx)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer closeQuietly(logger, "appender", appender.Close)

	snapshots, err := kvstore.Open(ctx, cfg.Snapshots())
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer closeQuietly(logger, "snapshots", snapshots.Close)

	repo, err := repository.NewBookRepository(appender, snapshots, repository.Options{
		Topic:   cfg.Log.Topic,
		Logger:  logger,
		Metrics: m,
		Tracer:  tracing.Tracer(),
	})
	if err != nil {
		return err
	}

	if err := addNextPage(ctx, repo, cfg.Book, logger); err != nil {
		return err
	}

	health := observability.NewHealthRegistry(5 * time.Second)
	health.RegisterReadinessCheck(observability.NewFuncCheck("snapshots", func(ctx context.Context) error {
		_, _, err := snapshots.Get(ctx, []byte("readiness-probe"))
		return err
	}))

	app := bookshelf.New()
	if err := app.RegisterComponent(tracing); err != nil {
		return err
	}

	var proj *projection.BookProjection
	var consumer *tailer.Consumer[book.Event]
	if cfg.Tailer.Enabled {
		projections, err := kvstore.Open(ctx, cfg.Projections())
		if err != nil {
			return fmt.Errorf("failed to open projection store: %w", err)
		}
		defer closeQuietly(logger, "projections", projections.Close)

		reader, err := factory.NewReader(ctx)
		if err != nil {
			return fmt.Errorf("failed to open log reader: %w", err)
		}
		defer closeQuietly(logger, "reader", reader.Close)

		consumer, proj, err = newTailer(reader, projections, cfg, m, tracing, logger)
		if err != nil {
			return err
		}
		health.RegisterHealthCheck(observability.NewFuncCheck(consumer.Name(), consumer.Check))
		if err := app.RegisterComponent(consumer); err != nil {
			return err
		}
	}

	if cfg.HTTP.Addr != "" {
		httpCfg := httpapi.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		var projReader httpapi.Projection
		if proj != nil {
			projReader = proj
		}
		server, err := httpapi.NewServer(httpCfg, repo, projReader, health, logger)
		if err != nil {
			return err
		}
		if err := app.RegisterComponent(server); err != nil {
			return err
		}
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer shutdown(logger, "components", app.Stop)

	if consumer == nil {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("tailer stopped: %w", err)
	}
	logger.Info("shutting down", slog.String("tailer_state", consumer.State().String()))
	return nil
}

// addNextPage загружает книгу или создает новую и дописывает "Page #N",
// где N на единицу больше числа страниц
func addNextPage(ctx context.Context, repo *repository.BookRepository, cfg config.BookConfig, logger *slog.Logger) error {
	id := cfg.ID
	if id == "" {
		id = book.NewID()
	}

	b, err := repo.GetOrCreate(ctx, id, cfg.Author)
	if err != nil {
		return fmt.Errorf("failed to load book %s: %w", id, err)
	}
	b.AddPage(fmt.Sprintf("Page #%d", b.PageCount()+1))
	if err := repo.Save(ctx, b); err != nil {
		return fmt.Errorf("failed to save book %s: %w", id, err)
	}

	logger.Info("book saved",
		slog.String("book_id", b.ID()),
		slog.String("author", b.Author()),
		slog.Int("pages", b.PageCount()))
	return nil
}

func newTailer(reader eventlog.Reader, store kvstore.Store, cfg config.Config, m *metrics.Metrics, tracing *observability.TracingManager, logger *slog.Logger) (*tailer.Consumer[book.Event], *projection.BookProjection, error) {
	proj, err := projection.NewBookProjection(store, logger)
	if err != nil {
		return nil, nil, err
	}
	handler, err := tailer.Deduplicate[book.Event](
		tailer.Chain[book.Event](projection.NewLoggingHandler(logger), proj),
		cfg.Tailer.DedupSize,
	)
	if err != nil {
		return nil, nil, err
	}

	consumer, err := tailer.New[book.Event](reader, book.Decode, handler, cfg.TailerConfig(),
		tailer.WithLogger(logger),
		tailer.WithMetrics(m),
		tailer.WithTracer(tracing.Tracer()),
	)
	if err != nil {
		return nil, nil, err
	}
	return consumer, proj, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "bookshelf"))
}

func shutdown(logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("shutdown failed", slog.String("component", name), slog.Any("error", err))
	}
}

func closeQuietly(logger *slog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("close failed", slog.String("component", name), slog.Any("error", err))
	}
}
