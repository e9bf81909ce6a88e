// Package batcher serializa todas las escrituras del pipeline: acumula
// sentencias de muchos productores y las aplica en una transacción por flush.
package batcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"go.uber.org/zap"
)

var ErrBatcherStopped = errors.New("batcher stopped")

const busyRetryDelay = 10 * time.Millisecond

type Config struct {
	FlushInterval time.Duration // disparador por tiempo
	BatchSize     int           // disparador por tamaño y tope por flush
	MaxQueueDepth int           // techo de sentencias encoladas
	FlushTimeout  time.Duration // límite de cada transacción de flush, espera del lock incluida
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: 50 * time.Millisecond,
		BatchSize:     100,
		MaxQueueDepth: 10000,
		FlushTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = def.MaxQueueDepth
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = def.FlushTimeout
	}
	return c
}

// Batcher es el único escritor del store. Muchos productores, una goroutine de flush.
type Batcher struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	queue   []group
	pending int
	stopped bool
	running bool

	flushMu sync.Mutex
	kick    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func NewBatcher(db *sql.DB, cfg Config, log *zap.Logger) *Batcher {
	return &Batcher{
		db:   db,
		cfg:  cfg.withDefaults(),
		log:  log,
		kick: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// AddCommand encola una sentencia suelta con su propio ticket.
func (b *Batcher) AddCommand(cmd Command) (*Ticket, error) {
	t := NewTicket()
	if err := b.Enqueue(t, cmd); err != nil {
		return nil, err
	}
	return t, nil
}

// Enqueue encola cmds como un grupo atómico que comparte el ticket t.
// No bloquea: si no hay capacidad devuelve ErrCapacityExceeded.
func (b *Batcher) Enqueue(t *Ticket, cmds ...Command) error {
	if len(cmds) == 0 {
		t.Resolve(nil)
		return nil
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBatcherStopped
	}
	if b.pending+len(cmds) > b.cfg.MaxQueueDepth {
		pending := b.pending
		b.mu.Unlock()
		return fmt.Errorf("%w: %d pending, %d incoming", domain.ErrCapacityExceeded, pending, len(cmds))
	}

	owned := make([]Command, len(cmds))
	copy(owned, cmds)
	b.queue = append(b.queue, group{cmds: owned, ticket: t})
	b.pending += len(owned)
	full := b.pending >= b.cfg.BatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending devuelve el número de sentencias en cola.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Start lanza el bucle de flush. Llamarlo más de una vez no tiene efecto.
func (b *Batcher) Start() {
	b.mu.Lock()
	if b.running || b.stopped {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	b.log.Info("🚀 Batcher iniciado",
		zap.Duration("flush_interval", b.cfg.FlushInterval),
		zap.Int("batch_size", b.cfg.BatchSize),
		zap.Int("max_queue_depth", b.cfg.MaxQueueDepth),
	)
	go b.run()
}

// Stop rechaza nuevas escrituras, detiene el bucle y vacía la cola con flushes finales.
func (b *Batcher) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	running := b.running
	b.mu.Unlock()

	if running {
		close(b.quit)
		select {
		case <-b.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs []error
	for b.Pending() > 0 {
		if _, err := b.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	b.log.Info("🛑 Batcher detenido")
	return errors.Join(errs...)
}

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
		case <-b.kick:
		}
		b.drain()
	}
}

func (b *Batcher) drain() {
	for b.Pending() > 0 {
		select {
		case <-b.quit:
			return
		default:
		}
		if _, err := b.Flush(context.Background()); err != nil {
			b.log.Error("❌ Flush fallido", zap.Error(err))
		}
	}
}

// Flush ejecuta un ciclo: toma los grupos más antiguos hasta BatchSize
// sentencias y los aplica en una transacción. Devuelve las sentencias aplicadas.
// Los fallos de un grupo llegan a su ticket; el error devuelto solo refleja
// fallos que afectan a todo el lote.
func (b *Batcher) Flush(ctx context.Context) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	batch := b.take()
	if len(batch) == 0 {
		return 0, nil
	}

	applied := 0
	remaining := batch
	for len(remaining) > 0 {
		failed, cmd, err := b.execute(ctx, remaining)
		if err == nil {
			for _, g := range remaining {
				applied += len(g.cmds)
				g.ticket.Resolve(nil)
			}
			break
		}

		if failed < 0 {
			// begin, commit o timeout: cae todo lo que quedaba
			flushErr := &domain.BatchFlushError{Kind: "commit", Err: err}
			for _, g := range remaining {
				g.ticket.Resolve(flushErr)
			}
			b.log.Error("❌ Lote rechazado", zap.Int("groups", len(remaining)), zap.Error(err))
			return applied, flushErr
		}

		culprit := remaining[failed]
		culprit.ticket.Resolve(classify(cmd, err))
		b.log.Warn("⚠️ Grupo rechazado en flush",
			zap.String("kind", string(cmd.Kind)),
			zap.String("aggregate_id", cmd.AggregateID),
			zap.Int64("version", cmd.Version),
			zap.Error(err),
		)

		next := make([]group, 0, len(remaining)-1)
		next = append(next, remaining[:failed]...)
		remaining = append(next, remaining[failed+1:]...)
	}

	return applied, nil
}

func (b *Batcher) take() []group {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}

	n, i := 0, 0
	for i < len(b.queue) {
		size := len(b.queue[i].cmds)
		if i > 0 && n+size > b.cfg.BatchSize {
			break
		}
		n += size
		i++
	}

	batch := make([]group, i)
	copy(batch, b.queue[:i])
	b.queue = append([]group(nil), b.queue[i:]...)
	b.pending -= n
	return batch
}

// execute aplica los grupos en orden dentro de una transacción.
// Si falla una sentencia devuelve el índice de su grupo y la sentencia;
// si falla la transacción en sí devuelve -1.
func (b *Batcher) execute(ctx context.Context, groups []group) (int, Command, error) {
	fctx, cancel := context.WithTimeout(ctx, b.cfg.FlushTimeout)
	defer cancel()

	tx, err := b.beginTx(fctx)
	if err != nil {
		return -1, Command{}, fmt.Errorf("begin flush tx: %w", err)
	}

	stmts := make(map[string]*sql.Stmt)
	for gi, g := range groups {
		for _, cmd := range g.cmds {
			stmt, ok := stmts[cmd.Query]
			if !ok {
				stmt, err = tx.PrepareContext(fctx, cmd.Query)
				if err != nil {
					_ = tx.Rollback()
					if fctx.Err() != nil {
						return -1, Command{}, fctx.Err()
					}
					return gi, cmd, fmt.Errorf("prepare: %w", err)
				}
				stmts[cmd.Query] = stmt
			}
			if _, err := stmt.ExecContext(fctx, cmd.Args...); err != nil {
				_ = tx.Rollback()
				if fctx.Err() != nil {
					return -1, Command{}, fctx.Err()
				}
				return gi, cmd, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, Command{}, fmt.Errorf("commit flush tx: %w", err)
	}
	return 0, Command{}, nil
}

// beginTx reintenta mientras el store esté ocupado, siempre dentro de fctx.
// Cada intento espera como mucho el busy_timeout de la conexión.
func (b *Batcher) beginTx(fctx context.Context) (*sql.Tx, error) {
	for {
		tx, err := b.db.BeginTx(fctx, nil)
		if err == nil {
			return tx, nil
		}
		if !platformdb.IsBusy(err) {
			return nil, err
		}

		wait := time.NewTimer(busyRetryDelay)
		select {
		case <-fctx.Done():
			wait.Stop()
			return nil, fmt.Errorf("%w: %w", fctx.Err(), err)
		case <-wait.C:
		}
	}
}

// classify convierte una violación de clave en events en conflicto de concurrencia.
func classify(cmd Command, err error) error {
	if cmd.Kind == KindEvent && platformdb.IsUniqueViolation(err) {
		return &domain.BatchFlushError{
			Kind:        string(cmd.Kind),
			AggregateID: cmd.AggregateID,
			Err: &domain.ConcurrencyError{
				AggregateID: cmd.AggregateID,
				Expected:    cmd.Version - 1,
				Actual:      -1,
			},
		}
	}
	return &domain.BatchFlushError{Kind: string(cmd.Kind), AggregateID: cmd.AggregateID, Err: err}
}
