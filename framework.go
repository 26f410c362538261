// Package bookshelf хранит книги как поток событий в логе, поддерживает
// снапшоты состояния в key-value хранилище и читает лог хвостовым консьюмером.
//
// Основные пакеты:
//   - internal/book: агрегат книги и его события
//   - internal/repository: сохранение в лог и снапшоты
//   - framework/tailer: poll/apply/commit цикл с at-least-once доставкой
//   - framework/eventlog, framework/kvstore: адаптеры лога и хранилища
//
// Пример использования:
//
//	app := bookshelf.New()
//	_ = app.RegisterComponent(server)
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Stop(ctx)
package bookshelf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/akriventsev/bookshelf/framework/core"
)

// Version представляет версию приложения
const (
	Version = "0.1.0"
	Major   = 0
	Minor   = 1
	Patch   = 0
)

// Metadata содержит метаданные о приложении
type Metadata struct {
	Name        string
	Version     string
	Description string
	License     string
}

// GetMetadata возвращает метаданные приложения
func GetMetadata() Metadata {
	return Metadata{
		Name:        "bookshelf",
		Version:     Version,
		Description: "Event sourced books over an append-only log with key-value snapshots",
		License:     "Apache-2.0",
	}
}

// App набор компонентов с общим жизненным циклом
type App struct {
	mu         sync.Mutex
	components []core.Component
	byName     map[string]core.Component
	started    []core.Lifecycle
}

// New создает пустое приложение
func New() *App {
	return &App{byName: make(map[string]core.Component)}
}

// RegisterComponent регистрирует компонент. Имена уникальны.
func (a *App) RegisterComponent(component core.Component) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byName[component.Name()]; exists {
		return fmt.Errorf("component %s already registered", component.Name())
	}
	a.byName[component.Name()] = component
	a.components = append(a.components, component)
	return nil
}

// GetComponent возвращает компонент по имени
func (a *App) GetComponent(name string) (core.Component, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	component, exists := a.byName[name]
	if !exists {
		return nil, core.NewError(core.ErrNotFound, fmt.Sprintf("component %s not found", name))
	}
	return component, nil
}

// Start запускает компоненты с core.Lifecycle в порядке регистрации.
// При ошибке уже запущенные компоненты останавливаются.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, component := range a.components {
		lc, ok := component.(core.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			stopErr := a.stopLocked(ctx)
			return errors.Join(fmt.Errorf("failed to start %s: %w", component.Name(), err), stopErr)
		}
		a.started = append(a.started, lc)
	}
	return nil
}

// Stop останавливает запущенные компоненты в обратном порядке
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked(ctx)
}

func (a *App) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(a.started) - 1; i >= 0; i-- {
		if err := a.started[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.started = nil
	return errors.Join(errs...)
}
