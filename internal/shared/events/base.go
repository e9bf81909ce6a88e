package events

import (
	"encoding/json"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/google/uuid"
)

// Base de todos los eventos de integración
type IntegrationEvent struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	AggregateID    string          `json:"aggregate_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data"` // el evento del agregado tal cual se guardó
}

// PartitionKey mantiene en orden los eventos de un mismo agregado.
func (e IntegrationEvent) PartitionKey() string {
	return e.AggregateID
}

// FromOutbox construye el mensaje que se publica para una fila de outbox.
func FromOutbox(evt domain.OutboxEvent) IntegrationEvent {
	data := json.RawMessage(evt.Payload)
	if !json.Valid(data) {
		data, _ = json.Marshal(string(evt.Payload))
	}
	return IntegrationEvent{
		ID:             evt.ID,
		Type:           evt.EventType,
		AggregateID:    evt.AggregateID,
		IdempotencyKey: evt.IdempotencyKey,
		Timestamp:      evt.CreatedAt,
		Data:           data,
	}
}

// DeduplicationKey es "<aggregate_id>:<version>"; los consumidores descartan repetidos.
func (e IntegrationEvent) DeduplicationKey() string {
	return e.IdempotencyKey
}
