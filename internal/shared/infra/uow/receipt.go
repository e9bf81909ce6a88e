package uow

import (
	"context"
	"sync"

	"github.com/davicafu/hexaledger/internal/shared/domain"
)

// Receipt se resuelve cuando el flush que contiene la unidad confirma y las
// proyecciones han visto sus eventos, o se rechaza con el error del flush.
type Receipt struct {
	events []domain.EventRecord

	once sync.Once
	done chan struct{}
	err  error
}

func newReceipt(events []domain.EventRecord) *Receipt {
	return &Receipt{events: events, done: make(chan struct{})}
}

func (r *Receipt) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait bloquea hasta la resolución o hasta que ctx termina.
// El error del flush puede ser *domain.BatchFlushError, que a su vez envuelve
// un *domain.ConcurrencyError si otra escritura ganó la versión.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events devuelve los eventos que escribió la unidad.
func (r *Receipt) Events() []domain.EventRecord {
	out := make([]domain.EventRecord, len(r.events))
	copy(out, r.events)
	return out
}
