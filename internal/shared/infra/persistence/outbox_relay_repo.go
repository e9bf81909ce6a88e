package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"github.com/google/uuid"
)

const (
	selectDueOutboxSQL = `SELECT id, aggregate_id, version, event_type, payload, status, retry_count,
			last_attempt_at, next_retry_at, idempotency_key, last_error, created_at
		FROM outbox
		WHERE (status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?))
		   OR (status = 'processing' AND last_attempt_at IS NOT NULL AND last_attempt_at <= ?)
		ORDER BY created_at, aggregate_id, version, id
		LIMIT ?`

	claimOutboxSQL = `UPDATE outbox SET status = 'processing', last_attempt_at = ? WHERE id = ?`

	markSentSQL = `UPDATE outbox SET status = 'sent', last_attempt_at = ?, next_retry_at = NULL, last_error = '' WHERE id = ?`

	markRetrySQL = `UPDATE outbox SET status = ?, retry_count = ?, last_attempt_at = ?, next_retry_at = ?, last_error = ? WHERE id = ?`

	summaryOutboxSQL = `SELECT status, COUNT(*) FROM outbox GROUP BY status`

	selectFailedOutboxSQL = `SELECT id FROM outbox WHERE status = 'failed' ORDER BY created_at, aggregate_id, version, id LIMIT ?`

	requeueOutboxSQL = `UPDATE outbox SET status = 'pending', retry_count = 0, next_retry_at = ?, last_error = '' WHERE id = ?`
)

// DefaultClaimLease es lo que una fila puede quedarse en processing antes de
// que otro ciclo la vuelva a reclamar.
const DefaultClaimLease = 30 * time.Second

// OutboxRelayRepo es el lado del publisher. Lee directamente del store y
// escribe a través del batcher, que sigue siendo el único escritor.
type OutboxRelayRepo struct {
	db    *sql.DB
	sink  GroupSink
	lease time.Duration

	selectDue    string
	claim        string
	markSent     string
	markRetry    string
	selectFailed string
	requeue      string
}

func NewOutboxRelayRepo(db *sql.DB, sink GroupSink, dialect platformdb.Dialect, lease time.Duration) *OutboxRelayRepo {
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &OutboxRelayRepo{
		db:           db,
		sink:         sink,
		lease:        lease,
		selectDue:    dialect.Rebind(selectDueOutboxSQL),
		claim:        dialect.Rebind(claimOutboxSQL),
		markSent:     dialect.Rebind(markSentSQL),
		markRetry:    dialect.Rebind(markRetrySQL),
		selectFailed: dialect.Rebind(selectFailedOutboxSQL),
		requeue:      dialect.Rebind(requeueOutboxSQL),
	}
}

// ClaimDue devuelve hasta limit filas vencidas y las deja en processing.
func (r *OutboxRelayRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	nowMs := platformdb.ToMillis(now)
	staleMs := platformdb.ToMillis(now.Add(-r.lease))

	rows, err := r.db.QueryContext(ctx, r.selectDue, nowMs, staleMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due outbox rows: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		evt, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	cmds := make([]batcher.Command, 0, len(events))
	for i := range events {
		cmds = append(cmds, batcher.Command{
			Kind:        batcher.KindOutbox,
			Query:       r.claim,
			Args:        []any{nowMs, events[i].ID},
			AggregateID: events[i].AggregateID,
		})
		attempt := now.UTC()
		events[i].Status = domain.OutboxProcessing
		events[i].LastAttemptAt = &attempt
	}
	if err := r.write(ctx, cmds...); err != nil {
		return nil, fmt.Errorf("failed to claim outbox rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRelayRepo) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.write(ctx, batcher.Command{
		Kind:  batcher.KindOutbox,
		Query: r.markSent,
		Args:  []any{platformdb.ToMillis(now), id},
	})
}

func (r *OutboxRelayRepo) MarkRetry(ctx context.Context, id uuid.UUID, now time.Time, attempt int, nextRetryAt time.Time, status domain.OutboxStatus, lastErr string) error {
	var next any
	if status == domain.OutboxPending {
		next = platformdb.ToMillis(nextRetryAt)
	}
	return r.write(ctx, batcher.Command{
		Kind:  batcher.KindOutbox,
		Query: r.markRetry,
		Args:  []any{string(status), attempt, platformdb.ToMillis(now), next, lastErr, id},
	})
}

func (r *OutboxRelayRepo) Summary(ctx context.Context) (domain.OutboxSummary, error) {
	var summary domain.OutboxSummary

	rows, err := r.db.QueryContext(ctx, summaryOutboxSQL)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize outbox: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, err
		}
		switch domain.OutboxStatus(status) {
		case domain.OutboxPending:
			summary.Pending = count
		case domain.OutboxProcessing:
			summary.Processing = count
		case domain.OutboxSent:
			summary.Sent = count
		case domain.OutboxFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

// RequeueFailed devuelve a pending hasta limit filas fallidas, con el contador a cero.
func (r *OutboxRelayRepo) RequeueFailed(ctx context.Context, limit int, now time.Time) (int, error) {
	rows, err := r.db.QueryContext(ctx, r.selectFailed, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to query failed outbox rows: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	nowMs := platformdb.ToMillis(now)
	cmds := make([]batcher.Command, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, batcher.Command{Kind: batcher.KindOutbox, Query: r.requeue, Args: []any{nowMs, id}})
	}
	if err := r.write(ctx, cmds...); err != nil {
		return 0, fmt.Errorf("failed to requeue outbox rows: %w", err)
	}
	return len(ids), nil
}

// write encola las sentencias como un grupo y espera a que el flush confirme.
func (r *OutboxRelayRepo) write(ctx context.Context, cmds ...batcher.Command) error {
	t := batcher.NewTicket()
	if err := r.sink.Enqueue(t, cmds...); err != nil {
		return err
	}
	return t.Wait(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (domain.OutboxEvent, error) {
	var (
		evt           domain.OutboxEvent
		status        string
		payload       []byte
		lastAttemptMs sql.NullInt64
		nextRetryMs   sql.NullInt64
		key           sql.NullString
	)
	err := row.Scan(&evt.ID, &evt.AggregateID, &evt.Version, &evt.EventType, &payload, &status, &evt.RetryCount,
		&lastAttemptMs, &nextRetryMs, &key, &evt.LastError, &evt.CreatedAt)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("failed to scan outbox row: %w", err)
	}

	evt.Payload = payload
	evt.Status = domain.OutboxStatus(status)
	evt.IdempotencyKey = key.String
	if lastAttemptMs.Valid {
		t := platformdb.FromMillis(lastAttemptMs.Int64)
		evt.LastAttemptAt = &t
	}
	if nextRetryMs.Valid {
		t := platformdb.FromMillis(nextRetryMs.Int64)
		evt.NextRetryAt = &t
	}
	return evt, nil
}

// Verificación en tiempo de compilación.
var _ domain.OutboxRelayRepository = (*OutboxRelayRepo)(nil)
