package persistence

import (
	"context"
	"fmt"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
)

const insertEventSQL = `INSERT INTO events (event_type, version, aggregate_id, correlation_id, occurred_at, payload)
	VALUES (?, ?, ?, ?, ?, ?)`

type EventRepo struct {
	sink   CommandSink
	insert string
}

func NewEventRepo(sink CommandSink, dialect platformdb.Dialect) *EventRepo {
	return &EventRepo{sink: sink, insert: dialect.Rebind(insertEventSQL)}
}

// AddEvent encola el INSERT. Un (aggregate_id, version) repetido falla al hacer
// flush y se informa como conflicto de concurrencia.
func (r *EventRepo) AddEvent(ctx context.Context, evt domain.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.AggregateID == "" {
		return fmt.Errorf("event without aggregate id")
	}

	_, err := r.sink.AddCommand(batcher.Command{
		Kind:        batcher.KindEvent,
		Query:       r.insert,
		Args:        []any{evt.EventType, evt.Version, evt.AggregateID, evt.CorrelationID, evt.OccurredAt.UTC(), string(evt.Payload)},
		AggregateID: evt.AggregateID,
		Version:     evt.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue event %s/%d: %w", evt.AggregateID, evt.Version, err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ domain.EventRepository = (*EventRepo)(nil)
