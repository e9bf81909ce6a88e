package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent representa un evento pendiente de publicar en el broker.
// Se escribe una vez por evento confirmado; a partir de ahí el estado es del publisher.
type OutboxEvent struct {
	ID             uuid.UUID    `json:"id"`
	AggregateID    string       `json:"aggregate_id"`
	Version        int64        `json:"version"` // versión del evento en su agregado
	EventType      string       `json:"event_type"` // ej. "product.created"
	Payload        []byte       `json:"payload"`
	Status         OutboxStatus `json:"status"`
	RetryCount     int          `json:"retry_count"`
	LastAttemptAt  *time.Time   `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time   `json:"next_retry_at,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// IdempotencyKeyFor forma la clave con la que los consumidores deduplican entregas.
func IdempotencyKeyFor(aggregateID string, version int64) string {
	return fmt.Sprintf("%s:%d", aggregateID, version)
}

// OutboxSummary cuenta filas por estado.
type OutboxSummary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// OutboxRelayRepository es el lado del publisher: reclama filas vencidas y
// registra el resultado de cada intento.
type OutboxRelayRepository interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, now time.Time, attempt int, nextRetryAt time.Time, status OutboxStatus, lastErr string) error
	Summary(ctx context.Context) (OutboxSummary, error)
	RequeueFailed(ctx context.Context, limit int, now time.Time) (int, error)
}
