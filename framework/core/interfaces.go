package core

import "context"

// Component именованная часть приложения
type Component interface {
	Name() string
	Type() ComponentType
}

// Lifecycle компонент, который запускается и останавливается вместе с приложением.
// Stop должен быть безопасен для повторного вызова.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}
