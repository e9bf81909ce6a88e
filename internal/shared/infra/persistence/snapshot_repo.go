package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
)

// El WHERE mantiene la versión monótona aunque lleguen upserts desordenados.
const upsertSnapshotSQL = `INSERT INTO snapshots (aggregate_id, correlation_id, version, payload)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id = excluded.correlation_id,
		version = excluded.version,
		payload = excluded.payload
	WHERE snapshots.version < excluded.version`

const selectSnapshotSQL = `SELECT aggregate_id, correlation_id, version, payload FROM snapshots WHERE aggregate_id = ?`

type SnapshotRepo struct {
	sink   CommandSink
	db     *sql.DB
	upsert string
	get    string
}

func NewSnapshotRepo(sink CommandSink, db *sql.DB, dialect platformdb.Dialect) *SnapshotRepo {
	return &SnapshotRepo{
		sink:   sink,
		db:     db,
		upsert: dialect.Rebind(upsertSnapshotSQL),
		get:    dialect.Rebind(selectSnapshotSQL),
	}
}

func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, snap domain.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := r.sink.AddCommand(batcher.Command{
		Kind:        batcher.KindSnapshot,
		Query:       r.upsert,
		Args:        []any{snap.AggregateID, snap.CorrelationID, snap.Version, string(snap.Payload)},
		AggregateID: snap.AggregateID,
		Version:     snap.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue snapshot %s/%d: %w", snap.AggregateID, snap.Version, err)
	}
	return nil
}

// GetSnapshot lee del store sin pasar por la cola: ve solo lo ya confirmado.
func (r *SnapshotRepo) GetSnapshot(ctx context.Context, aggregateID string) (*domain.SnapshotRecord, error) {
	var snap domain.SnapshotRecord
	var payload []byte

	err := r.db.QueryRowContext(ctx, r.get, aggregateID).Scan(&snap.AggregateID, &snap.CorrelationID, &snap.Version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", aggregateID, err)
	}
	snap.Payload = payload
	return &snap, nil
}

// Verificación en tiempo de compilación.
var _ domain.SnapshotRepository = (*SnapshotRepo)(nil)
