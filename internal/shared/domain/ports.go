package domain

import "context"

// ---------- Interfaces (Ports) ----------

// EventRepository añade eventos al log. Solo encola; la durabilidad llega con el flush.
type EventRepository interface {
	AddEvent(ctx context.Context, evt EventRecord) error
}

// SnapshotRepository guarda el estado materializado de cada agregado.
type SnapshotRepository interface {
	// Encola un upsert del snapshot.
	SaveSnapshot(ctx context.Context, snap SnapshotRecord) error

	// Lee directamente del store, sin pasar por el batcher.
	// Debe devolver ErrNotFound si el agregado no tiene snapshot.
	GetSnapshot(ctx context.Context, aggregateID string) (*SnapshotRecord, error)
}

// OutboxRepository escribe una fila de outbox por evento confirmado.
type OutboxRepository interface {
	AddOutboxEvent(ctx context.Context, evt OutboxEvent) error
}

// Repositories es el paquete de repositorios que recibe cada unidad de trabajo.
type Repositories struct {
	Events    EventRepository
	Snapshots SnapshotRepository
	Outbox    OutboxRepository
}

// ProjectionService mantiene los modelos de lectura. Se invoca una vez por
// evento confirmado, en orden de versión.
type ProjectionService interface {
	HandleEvent(ctx context.Context, evt EventRecord, repos Repositories) error
}
