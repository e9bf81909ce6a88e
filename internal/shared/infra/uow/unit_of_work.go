// Package uow agrupa las escrituras de un comando para que se confirmen juntas
// y devuelve un Receipt que se resuelve cuando el flush que las contiene confirma.
package uow

import (
	"context"
	"database/sql"
	"sync"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	"github.com/davicafu/hexaledger/internal/shared/infra/persistence"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"go.uber.org/zap"
)

// Sink es el lado del batcher que usa la unidad de trabajo.
type Sink interface {
	persistence.CommandSink
	persistence.GroupSink
}

type UnitOfWork struct {
	sink        Sink
	db          *sql.DB
	dialect     platformdb.Dialect
	projections []domain.ProjectionService
	log         *zap.Logger

	// repositorios fuera de cualquier unidad, para las proyecciones
	direct domain.Repositories

	dispatcher *dispatcher
}

func NewUnitOfWork(sink Sink, db *sql.DB, dialect platformdb.Dialect, log *zap.Logger, projections ...domain.ProjectionService) *UnitOfWork {
	u := &UnitOfWork{
		sink:        sink,
		db:          db,
		dialect:     dialect,
		projections: projections,
		log:         log,
	}
	u.direct = u.repositories(sink, nil)
	u.dispatcher = newDispatcher(u.project, log)
	return u
}

// WithTransaction ejecuta fn con repositorios que acumulan las escrituras.
// Si fn falla no se encola nada y el error se devuelve tal cual. Si termina
// bien, todas las escrituras se encolan como un único grupo.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (*Receipt, error) {
	unit := &unit{ticket: batcher.NewTicket()}
	repos := u.repositories(unit, unit)

	if err := fn(ctx, repos); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	receipt := newReceipt(unit.events)
	unit.ticket.OnResolve(func(err error) {
		if err != nil {
			receipt.resolve(err)
			return
		}
		u.dispatcher.push(receipt)
	})

	if err := u.sink.Enqueue(unit.ticket, unit.cmds...); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Close espera a que se despachen los recibos ya confirmados.
func (u *UnitOfWork) Close(ctx context.Context) error {
	return u.dispatcher.close(ctx)
}

func (u *UnitOfWork) repositories(sink persistence.CommandSink, recorder *unit) domain.Repositories {
	var events domain.EventRepository = persistence.NewEventRepo(sink, u.dialect)
	if recorder != nil {
		events = &recordingEvents{next: events, unit: recorder}
	}
	return domain.Repositories{
		Events:    events,
		Snapshots: persistence.NewSnapshotRepo(sink, u.db, u.dialect),
		Outbox:    persistence.NewOutboxRepo(sink, u.dialect),
	}
}

// project entrega los eventos confirmados a cada proyección, en orden de versión.
func (u *UnitOfWork) project(ctx context.Context, events []domain.EventRecord) {
	for _, evt := range events {
		for _, p := range u.projections {
			if err := p.HandleEvent(ctx, evt, u.direct); err != nil {
				u.log.Warn("⚠️ Proyección fallida",
					zap.String("aggregate_id", evt.AggregateID),
					zap.Int64("version", evt.Version),
					zap.String("event_type", evt.EventType),
					zap.Error(err),
				)
			}
		}
	}
}

// unit acumula las sentencias de una unidad de trabajo. AddCommand nunca falla
// y devuelve el ticket compartido por toda la unidad.
type unit struct {
	mu     sync.Mutex
	cmds   []batcher.Command
	events []domain.EventRecord
	ticket *batcher.Ticket
}

func (s *unit) AddCommand(cmd batcher.Command) (*batcher.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return s.ticket, nil
}

func (s *unit) record(evt domain.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type recordingEvents struct {
	next domain.EventRepository
	unit *unit
}

func (r *recordingEvents) AddEvent(ctx context.Context, evt domain.EventRecord) error {
	if err := r.next.AddEvent(ctx, evt); err != nil {
		return err
	}
	r.unit.record(evt)
	return nil
}
