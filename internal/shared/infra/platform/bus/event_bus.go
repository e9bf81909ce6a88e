package bus

import "context"

// Keyer lo implementan los eventos que fijan su clave de partición.
type Keyer interface {
	PartitionKey() string
}

// Deduplicable lo implementan los eventos que llevan clave de idempotencia.
type Deduplicable interface {
	DeduplicationKey() string
}

// La semántica de topic/nombre y formato del payload la decides en los adapters.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}
