// Package core предоставляет систему ошибок и базовые интерфейсы компонентов.
package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Коды ошибок
const (
	// ErrSerialization данные не удалось закодировать или декодировать в известную форму
	ErrSerialization = "SERIALIZATION_ERROR"
	// ErrTransport сбой записи в лог или чтения из него (связность, доступность)
	ErrTransport = "TRANSPORT_ERROR"
	// ErrOffsetCommit не удалось зафиксировать позицию consumer group
	ErrOffsetCommit = "OFFSET_COMMIT_ERROR"

	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrInvalidConfig   = "INVALID_CONFIG"
	ErrInternal        = "INTERNAL"
)

// FrameworkError базовый тип ошибки с кодом
type FrameworkError struct {
	Code       string
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is проверяет, соответствует ли ошибка коду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext добавляет контекст к ошибке
func (e *FrameworkError) WithContext(context string) *FrameworkError {
	return &FrameworkError{
		Code:       e.Code,
		Message:    fmt.Sprintf("%s: %s", context, e.Message),
		Cause:      e.Cause,
		StackTrace: e.StackTrace,
	}
}

// Эталонные значения для errors.Is. Сравнение идет только по коду.
var (
	SerializationError   = &FrameworkError{Code: ErrSerialization, Message: "serialization failed"}
	TransportError       = &FrameworkError{Code: ErrTransport, Message: "transport failed"}
	OffsetCommitError    = &FrameworkError{Code: ErrOffsetCommit, Message: "offset commit failed"}
	NotFoundError        = &FrameworkError{Code: ErrNotFound, Message: "not found"}
	InvalidArgumentError = &FrameworkError{Code: ErrInvalidArgument, Message: "invalid argument"}
	InvalidConfigError   = &FrameworkError{Code: ErrInvalidConfig, Message: "invalid config"}
)

// NewError создает новую ошибку
func NewError(code, message string) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code, message string) *FrameworkError {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// WrapWithCode оборачивает ошибку с кодом
func WrapWithCode(err error, code string) *FrameworkError {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    err.Error(),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// CodeOf возвращает код первой FrameworkError в цепочке или пустую строку
func CodeOf(err error) string {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode проверяет, содержит ли цепочка ошибку с указанным кодом
func HasCode(err error, code string) bool {
	return errors.Is(err, &FrameworkError{Code: code})
}

// captureStackTrace захватывает stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// Убираем первые строки (сама функция captureStackTrace)
	lines := strings.Split(stack, "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
