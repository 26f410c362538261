// Package httpapi HTTP API книг поверх репозитория: создание книги,
// добавление страницы, чтение снапшота и проекции, health и метрики.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/metrics"
	"github.com/akriventsev/bookshelf/framework/observability"
	"github.com/akriventsev/bookshelf/internal/book"
)

// Books операции репозитория, нужные API
type Books interface {
	Get(ctx context.Context, id string) (book.State, bool, error)
	Load(ctx context.Context, id string) (*book.Book, bool, error)
	Save(ctx context.Context, b *book.Book) error
}

// Projection чтение материализованного представления
type Projection interface {
	Get(ctx context.Context, id string) (book.State, bool, error)
}

// Config конфигурация HTTP сервера
type Config struct {
	Addr            string
	BasePath        string
	ServiceName     string
	ShutdownTimeout time.Duration
	EnableMetrics   bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		BasePath:        "/api/v1",
		ServiceName:     "bookshelf",
		ShutdownTimeout: 30 * time.Second,
		EnableMetrics:   true,
	}
}

// Server HTTP сервер API книг
type Server struct {
	config     Config
	router     *gin.Engine
	books      Books
	projection Projection
	health     *observability.HealthRegistry
	logger     *slog.Logger

	// writes сериализует load-modify-save одной книги
	writes sync.Mutex

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// NewServer создает сервер. projection и health могут быть nil.
func NewServer(config Config, books Books, projection Projection, health *observability.HealthRegistry, logger *slog.Logger) (*Server, error) {
	if books == nil {
		return nil, core.NewError(core.ErrInvalidArgument, "books repository is required")
	}
	if config.BasePath == "" {
		config.BasePath = DefaultConfig().BasePath
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if health == nil {
		health = observability.NewHealthRegistry(5 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:     config,
		router:     gin.New(),
		books:      books,
		projection: projection,
		health:     health,
		logger:     logger.With(slog.String("component", "httpapi")),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(gin.Recovery(), s.requestLogger())
	if s.config.ServiceName != "" {
		s.router.Use(observability.HTTPTracingMiddleware(s.config.ServiceName))
	}

	s.router.GET("/healthz", s.health.HealthCheckHandler())
	s.router.GET("/readyz", s.health.ReadinessCheckHandler())
	if s.config.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := s.router.Group(s.config.BasePath)
	api.POST("/books", s.createBook)
	api.GET("/books/:id", s.getBook)
	api.POST("/books/:id/pages", s.addPage)
	if s.projection != nil {
		api.GET("/projections/:id", s.getProjection)
	}
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start начинает слушать адрес (реализация core.Lifecycle)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return core.NewError(core.ErrInvalidArgument, "http server is already running")
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to listen "+s.config.Addr)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", slog.Any("error", err))
		}
	}(s.server)

	s.logger.Info("http server started", slog.String("addr", listener.Addr().String()))
	return nil
}

// Stop останавливает сервер (реализация core.Lifecycle)
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// IsRunning проверяет, запущен ли сервер (реализация core.Lifecycle)
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Name возвращает имя компонента
func (s *Server) Name() string {
	return "httpapi"
}

// Type возвращает тип компонента
func (s *Server) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}
