package tailer

import (
	"fmt"

	"github.com/akriventsev/bookshelf/framework/core"
)

// State состояние консьюмера
type State int32

const (
	// Idle ожидание следующего опроса
	Idle State = iota
	// Polling запрос пакета у лога
	Polling
	// Processing передача записей пакета обработчику
	Processing
	// Committing фиксация позиции группы за пакетом
	Committing
	// Faulted консьюмер остановлен ошибкой (терминальное)
	Faulted
	// Stopped консьюмер остановлен отменой контекста (терминальное)
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Processing:
		return "processing"
	case Committing:
		return "committing"
	case Faulted:
		return "faulted"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal сообщает, что из состояния нет переходов
func (s State) Terminal() bool {
	return s == Faulted || s == Stopped
}

// Фиксация идет с отдельным таймаутом и не прерывается отменой,
// поэтому из Committing нет перехода в Stopped.
var transitions = map[State][]State{
	Idle:       {Polling, Stopped, Faulted},
	Polling:    {Idle, Processing, Stopped, Faulted},
	Processing: {Committing, Stopped, Faulted},
	Committing: {Idle, Faulted},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return core.NewError(core.ErrInternal, fmt.Sprintf("illegal consumer transition %s -> %s", from, to))
}
