package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/akriventsev/bookshelf/framework/core"
)

// wireEvent внешне-тегированное представление: ровно одно поле не nil.
// Порядок полей фиксирован объявлением структур, поэтому кодирование
// воспроизводимо байт в байт.
type wireEvent struct {
	Created   *Created   `json:"Created,omitempty"`
	PageAdded *PageAdded `json:"PageAdded,omitempty"`
}

type wireEncoder struct{ w wireEvent }

func (e *wireEncoder) VisitCreated(ev Created)     { e.w.Created = &ev }
func (e *wireEncoder) VisitPageAdded(ev PageAdded) { e.w.PageAdded = &ev }

// Encode кодирует событие в JSON вида {"Created":{"id":"..","author":".."}}
func Encode(e Event) ([]byte, error) {
	if e == nil {
		return nil, core.NewError(core.ErrSerialization, "cannot encode nil event")
	}
	var enc wireEncoder
	e.Accept(&enc)
	return marshal(enc.w)
}

// Decode декодирует событие. Неизвестный тег, лишние или отсутствующие поля
// возвращают ошибку SERIALIZATION_ERROR.
func Decode(data []byte) (Event, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.Wrap(err, core.ErrSerialization, "failed to decode event envelope")
	}
	if len(envelope) != 1 {
		return nil, core.NewError(core.ErrSerialization,
			fmt.Sprintf("event envelope must have exactly one tag, got %d", len(envelope)))
	}

	for tag, payload := range envelope {
		switch tag {
		case TypeCreated:
			var ev Created
			if err := decodeStrict(payload, &ev, "id", "author"); err != nil {
				return nil, core.Wrap(err, core.ErrSerialization, "failed to decode Created")
			}
			return ev, nil
		case TypePageAdded:
			var ev PageAdded
			if err := decodeStrict(payload, &ev, "content"); err != nil {
				return nil, core.Wrap(err, core.ErrSerialization, "failed to decode PageAdded")
			}
			return ev, nil
		default:
			return nil, core.NewError(core.ErrSerialization, fmt.Sprintf("unknown event type %q", tag))
		}
	}
	return nil, core.NewError(core.ErrSerialization, "empty event envelope")
}

// decodeStrict требует ровно указанный набор полей
func decodeStrict(payload json.RawMessage, target interface{}, fields ...string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("payload must be an object")
	}
	for _, f := range fields {
		if _, ok := raw[f]; !ok {
			return fmt.Errorf("missing field %q", f)
		}
	}
	if len(raw) != len(fields) {
		extra := make([]string, 0, len(raw))
		for k := range raw {
			if !contains(fields, k) {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("unknown fields %v", extra)
	}
	return json.Unmarshal(payload, target)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// EncodeState кодирует спроецированное состояние для хранилища снапшотов
func EncodeState(s State) ([]byte, error) {
	if s.Pages == nil {
		s.Pages = []string{}
	}
	return marshal(s)
}

// DecodeState декодирует состояние из хранилища снапшотов
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, core.Wrap(err, core.ErrSerialization, "failed to decode state")
	}
	if s.Pages == nil {
		s.Pages = []string{}
	}
	return s, nil
}

// marshal JSON без HTML-экранирования и без завершающего перевода строки
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, core.Wrap(err, core.ErrSerialization, "failed to encode")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
