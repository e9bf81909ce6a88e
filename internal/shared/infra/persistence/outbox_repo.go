package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"github.com/google/uuid"
)

const insertOutboxSQL = `INSERT INTO outbox (id, aggregate_id, version, event_type, payload, status, retry_count, idempotency_key, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, '', ?)`

// OutboxRepo escribe las filas de outbox en el mismo grupo que sus eventos.
type OutboxRepo struct {
	sink   CommandSink
	insert string
}

func NewOutboxRepo(sink CommandSink, dialect platformdb.Dialect) *OutboxRepo {
	return &OutboxRepo{sink: sink, insert: dialect.Rebind(insertOutboxSQL)}
}

func (r *OutboxRepo) AddOutboxEvent(ctx context.Context, evt domain.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	var key any
	if evt.IdempotencyKey != "" {
		key = evt.IdempotencyKey
	}

	_, err := r.sink.AddCommand(batcher.Command{
		Kind:        batcher.KindOutbox,
		Query:       r.insert,
		Args:        []any{evt.ID, evt.AggregateID, evt.Version, evt.EventType, string(evt.Payload), string(domain.OutboxPending), key, evt.CreatedAt.UTC()},
		AggregateID: evt.AggregateID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event %s: %w", evt.ID, err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ domain.OutboxRepository = (*OutboxRepo)(nil)
