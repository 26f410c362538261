// Package projection содержит обработчики событий книг для tailer:
// журналирование доставок и материализованное представление книг.
package projection

import (
	"context"
	"log/slog"

	"github.com/akriventsev/bookshelf/framework/tailer"
	"github.com/akriventsev/bookshelf/internal/book"
)

// LoggingHandler пишет в журнал каждое доставленное событие вместе с позицией
// записи в логе. Состояние не меняет, поэтому безопасен при повторной доставке.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler создает LoggingHandler
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger.With(slog.String("component", "projection.log"))}
}

// Handle реализует tailer.Handler
func (h *LoggingHandler) Handle(ctx context.Context, d tailer.Delivery[book.Event]) error {
	h.logger.InfoContext(ctx, d.Record.Ref(),
		slog.String("event_type", book.EventType(d.Event)),
		slog.String("event_id", d.EventID()),
		slog.String("book_id", d.Key()),
		slog.Any("event", d.Event))
	return nil
}
