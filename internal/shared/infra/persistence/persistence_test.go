package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*sql.DB, *batcher.Batcher) {
	t.Helper()
	ctx := context.Background()
	conn, err := platformdb.Open(ctx, platformdb.DialectSQLite, filepath.Join(t.TempDir(), "persistence.db"))
	require.NoError(t, err)

	b := batcher.NewBatcher(conn, batcher.Config{FlushInterval: 5 * time.Millisecond}, zap.NewNop())
	b.Start()
	t.Cleanup(func() {
		_ = b.Stop(context.Background())
		conn.Close()
	})
	return conn, b
}

func flush(t *testing.T, b *batcher.Batcher) {
	t.Helper()
	_, err := b.Flush(context.Background())
	require.NoError(t, err)
}

// capturingSink guarda las sentencias en lugar de ejecutarlas.
type capturingSink struct {
	cmds []batcher.Command
}

func (s *capturingSink) AddCommand(cmd batcher.Command) (*batcher.Ticket, error) {
	s.cmds = append(s.cmds, cmd)
	return batcher.NewTicket(), nil
}

func TestEventRepo_AddEventBuildsEventCommand(t *testing.T) {
	sink := &capturingSink{}
	repo := NewEventRepo(sink, platformdb.DialectPostgres)

	err := repo.AddEvent(context.Background(), domain.EventRecord{
		AggregateID: "p-1",
		Version:     4,
		EventType:   "product.renamed",
		OccurredAt:  time.Now(),
		Payload:     []byte(`{}`),
	})
	require.NoError(t, err)

	require.Len(t, sink.cmds, 1)
	cmd := sink.cmds[0]
	assert.Equal(t, batcher.KindEvent, cmd.Kind)
	assert.Equal(t, "p-1", cmd.AggregateID)
	assert.Equal(t, int64(4), cmd.Version)
	assert.Contains(t, cmd.Query, "$6")
	assert.NotContains(t, cmd.Query, "?")

	assert.Error(t, repo.AddEvent(context.Background(), domain.EventRecord{}))
}

func TestRepos_RejectCancelledContext(t *testing.T) {
	sink := &capturingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewEventRepo(sink, platformdb.DialectSQLite).AddEvent(ctx, domain.EventRecord{AggregateID: "p"}), context.Canceled)
	assert.ErrorIs(t, NewOutboxRepo(sink, platformdb.DialectSQLite).AddOutboxEvent(ctx, domain.OutboxEvent{}), context.Canceled)
	assert.ErrorIs(t, NewSnapshotRepo(sink, nil, platformdb.DialectSQLite).SaveSnapshot(ctx, domain.SnapshotRecord{}), context.Canceled)
	assert.Empty(t, sink.cmds)
}

func TestSnapshotRepo_UpsertIsMonotonic(t *testing.T) {
	conn, b := setup(t)
	repo := NewSnapshotRepo(b, conn, platformdb.DialectSQLite)
	ctx := context.Background()

	_, err := repo.GetSnapshot(ctx, "p-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.SaveSnapshot(ctx, domain.SnapshotRecord{AggregateID: "p-1", CorrelationID: "c2", Version: 2, Payload: []byte(`{"v":2}`)}))
	require.NoError(t, repo.SaveSnapshot(ctx, domain.SnapshotRecord{AggregateID: "p-1", CorrelationID: "c1", Version: 1, Payload: []byte(`{"v":1}`)}))
	flush(t, b)

	snap, err := repo.GetSnapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, "c2", snap.CorrelationID)
	assert.JSONEq(t, `{"v":2}`, string(snap.Payload))

	require.NoError(t, repo.SaveSnapshot(ctx, domain.SnapshotRecord{AggregateID: "p-1", CorrelationID: "c3", Version: 3, Payload: []byte(`{"v":3}`)}))
	flush(t, b)

	snap, err = repo.GetSnapshot(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
}

func TestSnapshotRepo_ReadDoesNotSeeQueuedWrites(t *testing.T) {
	conn, _ := setup(t)
	// batcher sin arrancar: la escritura se queda en cola
	idle := batcher.NewBatcher(conn, batcher.Config{FlushInterval: time.Hour}, zap.NewNop())
	repo := NewSnapshotRepo(idle, conn, platformdb.DialectSQLite)

	require.NoError(t, repo.SaveSnapshot(context.Background(), domain.SnapshotRecord{AggregateID: "p-1", Version: 0, Payload: []byte(`{}`)}))
	_, err := repo.GetSnapshot(context.Background(), "p-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, idle.Pending())
}

func seedOutbox(t *testing.T, conn *sql.DB, b *batcher.Batcher, n int) []uuid.UUID {
	t.Helper()
	repo := NewOutboxRepo(b, platformdb.DialectSQLite)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < n; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, repo.AddOutboxEvent(context.Background(), domain.OutboxEvent{
			ID:             id,
			AggregateID:    "p-1",
			Version:        int64(i),
			EventType:      "product.created",
			Payload:        []byte(`{"n":1}`),
			IdempotencyKey: domain.IdempotencyKeyFor("p-1", int64(i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}
	flush(t, b)
	return ids
}

func TestOutboxRepo_AddOutboxEventDefaults(t *testing.T) {
	conn, b := setup(t)
	repo := NewOutboxRepo(b, platformdb.DialectSQLite)

	require.NoError(t, repo.AddOutboxEvent(context.Background(), domain.OutboxEvent{
		AggregateID: "p-1",
		EventType:   "product.created",
		Payload:     []byte(`{}`),
		Status:      domain.OutboxSent,
		RetryCount:  7,
	}))
	flush(t, b)

	var id, status string
	var retries int
	var key sql.NullString
	require.NoError(t, conn.QueryRow(`SELECT id, status, retry_count, idempotency_key FROM outbox`).Scan(&id, &status, &retries, &key))
	assert.NotEqual(t, uuid.Nil.String(), id)
	assert.Equal(t, "pending", status)
	assert.Zero(t, retries)
	assert.False(t, key.Valid)
}

func TestOutboxRelayRepo_Lifecycle(t *testing.T) {
	conn, b := setup(t)
	ids := seedOutbox(t, conn, b, 3)
	relay := NewOutboxRelayRepo(conn, b, platformdb.DialectSQLite, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	claimed, err := relay.ClaimDue(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)
	assert.Equal(t, domain.OutboxProcessing, claimed[0].Status)
	assert.Equal(t, "p-1:0", claimed[0].IdempotencyKey)
	assert.JSONEq(t, `{"n":1}`, string(claimed[0].Payload))

	// los reclamados no vuelven mientras dure el lease
	again, err := relay.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, ids[2], again[0].ID)

	require.NoError(t, relay.MarkSent(ctx, ids[0], now))
	require.NoError(t, relay.MarkRetry(ctx, ids[1], now, 1, now.Add(time.Second), domain.OutboxPending, "broker down"))
	require.NoError(t, relay.MarkRetry(ctx, ids[2], now, 5, now, domain.OutboxFailed, "gave up"))

	summary, err := relay.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxSummary{Pending: 1, Sent: 1, Failed: 1}, summary)

	// antes del backoff no está vencido
	due, err := relay.ClaimDue(ctx, now.Add(500*time.Millisecond), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = relay.ClaimDue(ctx, now.Add(2*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ids[1], due[0].ID)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.Equal(t, "broker down", due[0].LastError)
	require.NotNil(t, due[0].NextRetryAt)
	assert.Equal(t, now.Add(time.Second), *due[0].NextRetryAt)

	n, err := relay.RequeueFailed(ctx, 10, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	summary, err = relay.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Processing)
	assert.Zero(t, summary.Failed)
}

func TestOutboxRelayRepo_StaleClaimIsReclaimed(t *testing.T) {
	conn, b := setup(t)
	ids := seedOutbox(t, conn, b, 1)
	relay := NewOutboxRelayRepo(conn, b, platformdb.DialectSQLite, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	claimed, err := relay.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	none, err := relay.ClaimDue(ctx, now.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	reclaimed, err := relay.ClaimDue(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, ids[0], reclaimed[0].ID)
}

func TestOutboxRelayRepo_ClaimsSameInstantEventsInVersionOrder(t *testing.T) {
	conn, b := setup(t)
	repo := NewOutboxRepo(b, platformdb.DialectSQLite)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// ids en orden inverso al de versión: el id no puede decidir el orden
	ids := []uuid.UUID{
		uuid.MustParse("ffffffff-ffff-4fff-bfff-ffffffffffff"),
		uuid.MustParse("88888888-8888-4888-8888-888888888888"),
		uuid.MustParse("00000000-0000-4000-8000-000000000001"),
	}
	for i, id := range ids {
		require.NoError(t, repo.AddOutboxEvent(context.Background(), domain.OutboxEvent{
			ID:             id,
			AggregateID:    "p-1",
			Version:        int64(i),
			EventType:      "product.changed",
			Payload:        []byte(`{}`),
			IdempotencyKey: domain.IdempotencyKeyFor("p-1", int64(i)),
			CreatedAt:      at,
		}))
	}
	flush(t, b)

	relay := NewOutboxRelayRepo(conn, b, platformdb.DialectSQLite, time.Minute)
	claimed, err := relay.ClaimDue(context.Background(), at.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for i, evt := range claimed {
		assert.Equal(t, int64(i), evt.Version)
		assert.Equal(t, ids[i], evt.ID)
	}
}
