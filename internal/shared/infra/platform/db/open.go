package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/infra/utils"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout es la espera por el lock de escritura de SQLite si no se indica otra.
const DefaultBusyTimeout = 5 * time.Second

type openOptions struct {
	busyTimeout time.Duration
}

type OpenOption func(*openOptions)

// WithBusyTimeout fija cuánto espera SQLite por el lock de escritura en cada
// intento. Debe ser menor o igual que el FlushTimeout del batcher.
func WithBusyTimeout(d time.Duration) OpenOption {
	return func(o *openOptions) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// SQLiteDSN añade los pragmas que necesita el pipeline: WAL para que las
// lecturas de snapshots no esperen al flush y busy_timeout para el escritor.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	clean := filepath.Clean(path)
	return "file:" + clean +
		"?_pragma=journal_mode(WAL)" +
		fmt.Sprintf("&_pragma=busy_timeout(%d)", busyTimeout.Milliseconds()) +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Open abre la conexión, comprueba que responde (con reintentos) y crea el esquema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...OpenOption) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", dialect)
	}
	o := openOptions{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if dialect == DialectSQLite && !strings.HasPrefix(dsn, "file:") {
		dsn = SQLiteDSN(dsn, o.busyTimeout)
	}

	conn, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		conn.SetMaxOpenConns(4)
	}

	err = utils.Retry(ctx, 5, 500*time.Millisecond, func() error {
		return conn.PingContext(ctx)
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	if err := InitSchema(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func FromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
