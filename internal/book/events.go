// Package book содержит Event Sourced агрегат "Книга": закрытый набор доменных
// событий, чистую функцию свертки и сам агрегат с буфером несохраненных событий.
package book

// Имена вариантов событий. Используются как тег в JSON и в заголовках записей лога.
const (
	TypeCreated   = "Created"
	TypePageAdded = "PageAdded"
)

// Event доменное событие книги.
//
// Набор вариантов закрыт: реализовать интерфейс можно только внутри пакета.
// Каждый вариант диспетчеризуется через Visitor, поэтому новый вариант
// не скомпилируется, пока в Visitor не появится метод для него, а значит и
// пока его не обработают все посетители, включая свертку.
type Event interface {
	Accept(v Visitor)
	isBookEvent()
}

// Visitor исчерпывающий обход вариантов Event
type Visitor interface {
	VisitCreated(e Created)
	VisitPageAdded(e PageAdded)
}

// Created событие создания книги. Логически всегда первое в истории агрегата.
type Created struct {
	ID     string `json:"id"`
	Author string `json:"author"`
}

// Accept вызывает VisitCreated
func (e Created) Accept(v Visitor) { v.VisitCreated(e) }

func (Created) isBookEvent() {}

// PageAdded событие добавления страницы
type PageAdded struct {
	Content string `json:"content"`
}

// Accept вызывает VisitPageAdded
func (e PageAdded) Accept(v Visitor) { v.VisitPageAdded(e) }

func (PageAdded) isBookEvent() {}

// EventType возвращает имя варианта события
func EventType(e Event) string {
	var n typeNamer
	e.Accept(&n)
	return n.name
}

type typeNamer struct{ name string }

func (n *typeNamer) VisitCreated(Created)     { n.name = TypeCreated }
func (n *typeNamer) VisitPageAdded(PageAdded) { n.name = TypePageAdded }

// State спроецированное состояние книги
type State struct {
	ID     string   `json:"id"`
	Author string   `json:"author"`
	Pages  []string `json:"pages"`
}

// Clone возвращает глубокую копию состояния
func (s State) Clone() State {
	pages := make([]string, len(s.Pages))
	copy(pages, s.Pages)
	return State{ID: s.ID, Author: s.Author, Pages: pages}
}

// Apply применяет одно событие к состоянию и возвращает новое состояние.
// Исходное состояние не изменяется.
func Apply(e Event, s State) State {
	next := s.Clone()
	e.Accept((*folder)(&next))
	return next
}

// folder свертка событий в State на месте
type folder State

func (f *folder) VisitCreated(e Created) {
	f.ID = e.ID
	f.Author = e.Author
}

func (f *folder) VisitPageAdded(e PageAdded) {
	f.Pages = append(f.Pages, e.Content)
}
