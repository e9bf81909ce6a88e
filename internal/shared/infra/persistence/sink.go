// Package persistence implementa los repositorios de escritura del pipeline.
// No escriben en el store: traducen cada registro a una sentencia y la
// entregan a un CommandSink (el batcher o el buffer de una unidad de trabajo).
package persistence

import (
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
)

// CommandSink recibe sentencias ya preparadas para el dialecto.
type CommandSink interface {
	AddCommand(cmd batcher.Command) (*batcher.Ticket, error)
}

// GroupSink encola varias sentencias bajo un mismo ticket.
type GroupSink interface {
	Enqueue(t *batcher.Ticket, cmds ...batcher.Command) error
}

var (
	_ CommandSink = (*batcher.Batcher)(nil)
	_ GroupSink   = (*batcher.Batcher)(nil)
)
