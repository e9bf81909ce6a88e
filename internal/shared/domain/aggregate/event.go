package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/google/uuid"
)

// Event es el evento tipado que produce cada mutación.
type Event struct {
	AggregateID   string          `json:"aggregateId"`
	Type          string          `json:"type"`
	Version       int64           `json:"version"`
	CorrelationID string          `json:"correlationId"`
	UserID        string          `json:"userId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	PriorState    json.RawMessage `json:"priorState"`
	NewState      json.RawMessage `json:"newState"`
}

// Record serializa el evento a una fila del log.
func (e Event) Record() (domain.EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return domain.EventRecord{}, fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	return domain.EventRecord{
		AggregateID:   e.AggregateID,
		Version:       e.Version,
		EventType:     e.Type,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.OccurredAt,
		Payload:       payload,
	}, nil
}

// DecodeEvent es la inversa de Record, para proyecciones y consumidores.
func DecodeEvent(rec domain.EventRecord) (Event, error) {
	var evt Event
	if err := json.Unmarshal(rec.Payload, &evt); err != nil {
		return Event{}, fmt.Errorf("invalid event payload %s/%d: %w", rec.AggregateID, rec.Version, err)
	}
	return evt, nil
}

// HandOff entrega los eventos no confirmados: por cada uno un evento y una fila
// de outbox, y al final el snapshot con el estado y la versión nuevos.
// Las escrituras solo se encolan; conviene emitirlas seguidas.
func (a *Aggregate[S]) HandOff(ctx context.Context, repos domain.Repositories) error {
	if len(a.uncommitted) == 0 {
		return nil
	}

	for _, evt := range a.uncommitted {
		rec, err := evt.Record()
		if err != nil {
			return err
		}
		if err := repos.Events.AddEvent(ctx, rec); err != nil {
			return fmt.Errorf("failed to add event %s/%d: %w", rec.AggregateID, rec.Version, err)
		}

		outboxEvent := domain.OutboxEvent{
			ID:             uuid.New(),
			AggregateID:    rec.AggregateID,
			Version:        rec.Version,
			EventType:      rec.EventType,
			Payload:        rec.Payload,
			Status:         domain.OutboxPending,
			IdempotencyKey: domain.IdempotencyKeyFor(rec.AggregateID, rec.Version),
			CreatedAt:      rec.OccurredAt,
		}
		if err := repos.Outbox.AddOutboxEvent(ctx, outboxEvent); err != nil {
			return fmt.Errorf("failed to add outbox event %s/%d: %w", rec.AggregateID, rec.Version, err)
		}
	}

	payload, err := json.Marshal(a.state)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", a.kind, err)
	}
	snap := domain.SnapshotRecord{
		AggregateID:   a.id,
		CorrelationID: a.correlationID,
		Version:       a.version,
		Payload:       payload,
	}
	if err := repos.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", a.id, err)
	}

	a.committed = append(a.committed, a.uncommitted...)
	a.uncommitted = nil
	a.stage = StageHandedOff
	return nil
}
