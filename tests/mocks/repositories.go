package mocks

import (
	"context"
	"sync"

	"github.com/davicafu/hexaledger/internal/shared/domain"
)

// InMemoryRepositories simula los tres repositorios de escritura más la lectura de snapshots.
// Las escrituras se aplican al momento, sin batcher.
type InMemoryRepositories struct {
	Events    []domain.EventRecord
	Outbox    []domain.OutboxEvent
	Snapshots map[string]domain.SnapshotRecord

	// FailOn hace fallar la escritura del tipo indicado ("event", "outbox", "snapshot").
	FailOn  string
	FailErr error

	mu sync.Mutex
}

func NewInMemoryRepositories() *InMemoryRepositories {
	return &InMemoryRepositories{
		Snapshots: make(map[string]domain.SnapshotRecord),
	}
}

// Bundle devuelve el paquete de repositorios respaldado por este fake.
func (r *InMemoryRepositories) Bundle() domain.Repositories {
	return domain.Repositories{
		Events:    eventsFake{r},
		Snapshots: snapshotsFake{r},
		Outbox:    outboxFake{r},
	}
}

type eventsFake struct{ r *InMemoryRepositories }

func (f eventsFake) AddEvent(ctx context.Context, evt domain.EventRecord) error {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	if f.r.FailOn == "event" {
		return f.r.FailErr
	}
	f.r.Events = append(f.r.Events, evt)
	return nil
}

type outboxFake struct{ r *InMemoryRepositories }

func (f outboxFake) AddOutboxEvent(ctx context.Context, evt domain.OutboxEvent) error {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	if f.r.FailOn == "outbox" {
		return f.r.FailErr
	}
	f.r.Outbox = append(f.r.Outbox, evt)
	return nil
}

type snapshotsFake struct{ r *InMemoryRepositories }

func (f snapshotsFake) SaveSnapshot(ctx context.Context, snap domain.SnapshotRecord) error {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	if f.r.FailOn == "snapshot" {
		return f.r.FailErr
	}
	f.r.Snapshots[snap.AggregateID] = snap
	return nil
}

func (f snapshotsFake) GetSnapshot(ctx context.Context, aggregateID string) (*domain.SnapshotRecord, error) {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	snap, ok := f.r.Snapshots[aggregateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &snap, nil
}

// Verificación estática
var (
	_ domain.EventRepository    = eventsFake{}
	_ domain.SnapshotRepository = snapshotsFake{}
	_ domain.OutboxRepository   = outboxFake{}
)
