package domain

import (
	"time"
)

// EventRecord es una fila del log de eventos. Clave (AggregateID, Version).
// Solo se inserta; nunca se modifica ni se borra.
type EventRecord struct {
	AggregateID   string    `json:"aggregate_id"`
	Version       int64     `json:"version"`
	EventType     string    `json:"event_type"` // ej. "product.renamed"
	CorrelationID string    `json:"correlation_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       []byte    `json:"payload"`
}

// SnapshotRecord es el estado materializado de un agregado. Una fila por agregado.
type SnapshotRecord struct {
	AggregateID   string `json:"aggregate_id"`
	CorrelationID string `json:"correlation_id"`
	Version       int64  `json:"version"`
	Payload       []byte `json:"payload"`
}
