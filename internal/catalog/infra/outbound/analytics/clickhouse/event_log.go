package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const createEventLog = `
CREATE TABLE IF NOT EXISTS product_event_log (
	aggregate_id   String,
	version        Int64,
	event_type     LowCardinality(String),
	correlation_id String,
	user_id        String,
	price_cents    Int64,
	stock          Int64,
	active         UInt8,
	occurred_at    DateTime64(3, 'UTC'),
	logged_at      DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(logged_at)
ORDER BY (aggregate_id, version)`

const insertEventLog = `INSERT INTO product_event_log
	(aggregate_id, version, event_type, correlation_id, user_id, price_cents, stock, active, occurred_at, logged_at)`

// EventLogRepo guarda los eventos de producto en ClickHouse para analítica.
// ReplacingMergeTree colapsa las filas repetidas de (aggregate_id, version).
type EventLogRepo struct {
	db *sql.DB
}

func NewEventLogRepo(ctx context.Context, addr string, dbName string) (*EventLogRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	if _, err := conn.ExecContext(ctx, createEventLog); err != nil {
		return nil, fmt.Errorf("could not create product_event_log: %w", err)
	}
	return &EventLogRepo{db: conn}, nil
}

func (r *EventLogRepo) Append(ctx context.Context, e catalogDomain.LoggedEvent) error {
	return r.LogBatch(ctx, []catalogDomain.LoggedEvent{e})
}

// LogBatch inserta varios eventos en un único bloque.
func (r *EventLogRepo) LogBatch(ctx context.Context, events []catalogDomain.LoggedEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertEventLog)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	loggedAt := time.Now().UTC()
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.AggregateID,
			e.Version,
			e.EventType,
			e.CorrelationID,
			e.UserID,
			e.PriceCents,
			int64(e.Stock),
			boolToUInt8(e.Active),
			e.OccurredAt.UTC(),
			loggedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for %s/%d: %w", e.AggregateID, e.Version, err)
		}
	}

	return tx.Commit()
}

// GetDailyActivity cuenta los eventos de [start, end) por día y tipo.
func (r *EventLogRepo) GetDailyActivity(ctx context.Context, start, end time.Time) ([]catalogDomain.DailyActivity, error) {
	query := `
		SELECT toStartOfDay(occurred_at) AS day, event_type, count() AS n
		FROM product_event_log FINAL
		WHERE occurred_at >= ? AND occurred_at < ?
		GROUP BY day, event_type
		ORDER BY day, event_type
	`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalogDomain.DailyActivity
	for rows.Next() {
		var a catalogDomain.DailyActivity
		if err := rows.Scan(&a.Day, &a.EventType, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *EventLogRepo) Close() error {
	return r.db.Close()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Verificación en tiempo de compilación.
var (
	_ catalogDomain.EventLog       = (*EventLogRepo)(nil)
	_ catalogDomain.ActivityReader = (*EventLogRepo)(nil)
)
