package core

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeStore     ComponentType = "store"
	ComponentTypeConsumer  ComponentType = "consumer"
	ComponentTypeTransport ComponentType = "transport"
)
