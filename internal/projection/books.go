package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/eventlog"
	"github.com/akriventsev/bookshelf/framework/kvstore"
	"github.com/akriventsev/bookshelf/framework/tailer"
	"github.com/akriventsev/bookshelf/internal/book"
)

// view запись представления: состояние книги и позиция последнего
// примененного события
type view struct {
	State    book.State `json:"state"`
	Offset   int64      `json:"offset"`
	Position string     `json:"position,omitempty"`
}

// BookProjection собирает состояние книг из лога в отдельное хранилище.
// Представление можно перестроить, перечитав лог с начала.
//
// Created перезаписывает состояние, PageAdded дописывает страницу.
// Событие с позицией не новее уже примененной пропускается, так что
// повторная доставка пакета после перезапуска не дублирует страницы.
type BookProjection struct {
	store  kvstore.Store
	logger *slog.Logger
}

// NewBookProjection создает проекцию поверх хранилища
func NewBookProjection(store kvstore.Store, logger *slog.Logger) (*BookProjection, error) {
	if store == nil {
		return nil, core.NewError(core.ErrInvalidArgument, "projection store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookProjection{
		store:  store,
		logger: logger.With(slog.String("component", "projection.books")),
	}, nil
}

// Handle реализует tailer.Handler
func (p *BookProjection) Handle(ctx context.Context, d tailer.Delivery[book.Event]) error {
	id := d.Key()
	if created, ok := d.Event.(book.Created); ok && id == "" {
		id = created.ID
	}
	current, found, err := p.load(ctx, id)
	if err != nil {
		return err
	}

	if found && !isAfter(d.Record, current) {
		p.logger.DebugContext(ctx, "event already applied",
			slog.String("book_id", id),
			slog.String("ref", d.Record.Ref()))
		return nil
	}

	next := view{Offset: d.Record.Offset, Position: d.Record.Position}
	switch e := d.Event.(type) {
	case book.Created:
		next.State = book.Apply(e, book.State{Pages: []string{}})
	case book.PageAdded:
		if !found {
			return core.NewError(core.ErrNotFound,
				fmt.Sprintf("page added to unknown book %q at %s", id, d.Record.Ref()))
		}
		next.State = book.Apply(e, current.State)
	default:
		return core.NewError(core.ErrSerialization, fmt.Sprintf("unsupported event %T", d.Event))
	}

	return p.save(ctx, id, next)
}

// Get возвращает состояние книги из представления
func (p *BookProjection) Get(ctx context.Context, id string) (book.State, bool, error) {
	v, found, err := p.load(ctx, id)
	if err != nil || !found {
		return book.State{}, found, err
	}
	return v.State, true, nil
}

func (p *BookProjection) load(ctx context.Context, id string) (view, bool, error) {
	if id == "" {
		return view{}, false, core.NewError(core.ErrInvalidArgument, "record without book id")
	}
	data, found, err := p.store.Get(ctx, []byte(id))
	if err != nil || !found {
		return view{}, found, err
	}

	var v view
	if err := json.Unmarshal(data, &v); err != nil {
		return view{}, false, core.Wrap(err, core.ErrSerialization, fmt.Sprintf("corrupt projection for book %s", id))
	}
	return v, true, nil
}

func (p *BookProjection) save(ctx context.Context, id string, v view) error {
	data, err := json.Marshal(v)
	if err != nil {
		return core.Wrap(err, core.ErrSerialization, "failed to encode projection")
	}
	if err := p.store.Put(ctx, []byte(id), data); err != nil {
		return core.Wrap(err, core.ErrTransport, fmt.Sprintf("failed to store projection for book %s", id))
	}
	return nil
}

// isAfter сообщает, что запись новее последней примененной.
// Без позиции в записи событие всегда применяется.
func isAfter(rec eventlog.Record, applied view) bool {
	if rec.Position != "" {
		return comparePositions(rec.Position, applied.Position) > 0
	}
	if rec.Offset < 0 {
		return true
	}
	return rec.Offset > applied.Offset
}

// comparePositions сравнивает ID записей Redis Stream вида "ms-seq".
// Нераспознанные позиции считаются новыми.
func comparePositions(a, b string) int {
	am, as, ok := splitPosition(a)
	if !ok {
		return 1
	}
	bm, bs, ok := splitPosition(b)
	if !ok {
		return 1
	}
	switch {
	case am != bm:
		if am > bm {
			return 1
		}
		return -1
	case as > bs:
		return 1
	case as < bs:
		return -1
	}
	return 0
}

func splitPosition(p string) (uint64, uint64, bool) {
	msPart, seqPart, ok := strings.Cut(p, "-")
	if !ok {
		return 0, 0, false
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ms, seq, true
}
