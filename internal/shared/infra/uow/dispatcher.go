package uow

import (
	"context"
	"sync"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"go.uber.org/zap"
)

// dispatcher ejecuta las proyecciones fuera de la goroutine de flush, en el
// mismo orden en que confirmaron los recibos.
type dispatcher struct {
	handle func(ctx context.Context, events []domain.EventRecord)
	log    *zap.Logger

	mu     sync.Mutex
	queue  []*Receipt
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(handle func(context.Context, []domain.EventRecord), log *zap.Logger) *dispatcher {
	d := &dispatcher{
		handle: handle,
		log:    log,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(r *Receipt) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		// tras Close ya no hay proyecciones; la escritura sí está confirmada
		r.resolve(nil)
		return
	}
	d.queue = append(d.queue, r)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			continue
		}
		r := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.handle(context.Background(), r.events)
		r.resolve(nil)
	}
}

func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	select {
	case <-d.done:
		d.log.Info("🛑 Despachador de proyecciones detenido")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
