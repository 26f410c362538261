package book

import (
	"strings"

	"github.com/google/uuid"

	"github.com/akriventsev/bookshelf/framework/core"
)

// Envelope несохраненное событие вместе с его идентификатором.
// Идентификатор назначается при постановке в буфер и не участвует в свертке.
type Envelope struct {
	EventID string
	Event   Event
}

// newEventID генератор идентификаторов событий
var newEventID = uuid.NewString

// NewID генерирует новый идентификатор книги
func NewID() string {
	return uuid.NewString()
}

// Book Event Sourced агрегат книги
type Book struct {
	state   State
	pending []Envelope
}

// New создает новую книгу. Состояние уже содержит id и author, в буфере
// одно событие Created. Пустые id и author отклоняются.
func New(id, author string) (*Book, error) {
	if strings.TrimSpace(id) == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "book id cannot be empty")
	}
	if strings.TrimSpace(author) == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "book author cannot be empty")
	}

	b := &Book{state: State{Pages: []string{}}}
	b.raise(Created{ID: id, Author: author})
	return b, nil
}

// FromEvents восстанавливает книгу из упорядоченной истории событий.
// Буфер несохраненных событий пуст.
func FromEvents(events []Event) *Book {
	b := &Book{state: State{Pages: []string{}}}
	f := (*folder)(&b.state)
	for _, e := range events {
		e.Accept(f)
	}
	return b
}

// FromState восстанавливает книгу из снапшота. Буфер несохраненных событий пуст.
func FromState(s State) *Book {
	st := s.Clone()
	return &Book{state: st}
}

// ID возвращает идентификатор книги
func (b *Book) ID() string {
	return b.state.ID
}

// Author возвращает автора
func (b *Book) Author() string {
	return b.state.Author
}

// Pages возвращает копию страниц
func (b *Book) Pages() []string {
	pages := make([]string, len(b.state.Pages))
	copy(pages, b.state.Pages)
	return pages
}

// PageCount возвращает количество страниц
func (b *Book) PageCount() int {
	return len(b.state.Pages)
}

// State возвращает копию спроецированного состояния
func (b *Book) State() State {
	return b.state.Clone()
}

// AddPage добавляет страницу и ставит PageAdded в буфер
func (b *Book) AddPage(content string) {
	b.raise(PageAdded{Content: content})
}

// raise применяет событие и добавляет его в буфер. Оба изменения
// вычисляются заранее и присваиваются вместе.
func (b *Book) raise(e Event) {
	next := Apply(e, b.state)
	pending := append(b.pending[:len(b.pending):len(b.pending)], Envelope{EventID: newEventID(), Event: e})
	b.state = next
	b.pending = pending
}

// PendingEvents возвращает несохраненные события в порядке постановки
func (b *Book) PendingEvents() []Event {
	events := make([]Event, len(b.pending))
	for i, env := range b.pending {
		events[i] = env.Event
	}
	return events
}

// PendingEnvelopes возвращает несохраненные события с идентификаторами
func (b *Book) PendingEnvelopes() []Envelope {
	envs := make([]Envelope, len(b.pending))
	copy(envs, b.pending)
	return envs
}

// HasPendingEvents проверяет наличие несохраненных событий
func (b *Book) HasPendingEvents() bool {
	return len(b.pending) > 0
}

// ClearPendingEvents очищает буфер. Вызывать только после подтвержденной
// записи событий в лог и снапшота в хранилище.
func (b *Book) ClearPendingEvents() {
	b.pending = nil
}
