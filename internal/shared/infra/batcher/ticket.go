package batcher

import (
	"context"
	"sync"
)

// Ticket se resuelve una única vez, cuando el flush que contiene su grupo
// confirma (nil) o falla (error del grupo).
type Ticket struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	resolved  bool
	callbacks []func(error)
}

func NewTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

// Done se cierra al resolver el ticket.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Err devuelve el resultado; nil mientras no se haya resuelto.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait bloquea hasta que el ticket se resuelve o ctx termina.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnResolve registra fn para ejecutarse al resolver, en la goroutine que resuelve.
// Si ya estaba resuelto se ejecuta en el acto.
func (t *Ticket) OnResolve(fn func(error)) {
	t.mu.Lock()
	if t.resolved {
		err := t.err
		t.mu.Unlock()
		fn(err)
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// Resolve fija el resultado. Las llamadas posteriores no tienen efecto.
func (t *Ticket) Resolve(err error) bool {
	t.mu.Lock()
	if t.resolved {
		t.mu.Unlock()
		return false
	}
	t.resolved = true
	t.err = err
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
	return true
}
