package batcher

// Kind clasifica cada sentencia para poder atribuir un fallo al hacer flush.
type Kind string

const (
	KindEvent    Kind = "event"
	KindSnapshot Kind = "snapshot"
	KindOutbox   Kind = "outbox"
	KindRaw      Kind = "raw"
)

// Command es una sentencia parametrizada pendiente de ejecutar.
// Query ya viene con los placeholders del dialecto.
type Command struct {
	Kind        Kind
	Query       string
	Args        []any
	AggregateID string
	Version     int64
}

// group agrupa las sentencias que comparten ticket. Nunca se parte entre flushes.
type group struct {
	cmds   []Command
	ticket *Ticket
}
