package domain

import (
	"errors"
	"fmt"
)

// ---------- Errores de dominio ----------
var (
	ErrNotFound            = errors.New("aggregate not found")
	ErrConcurrencyConflict = errors.New("optimistic concurrency conflict")
	ErrValidation          = errors.New("validation failed")
	ErrBatchFlush          = errors.New("batch flush failed")
	ErrCapacityExceeded    = errors.New("write queue capacity exceeded")
)

// ConcurrencyError lleva la versión que esperaba el llamador y la que encontró.
// Actual es -1 cuando el conflicto se detecta al hacer flush y la versión
// almacenada no se conoce.
type ConcurrencyError struct {
	AggregateID string
	Expected    int64
	Actual      int64
}

func (e *ConcurrencyError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("optimistic concurrency conflict on %s: version %d already committed", e.AggregateID, e.Expected+1)
	}
	return fmt.Sprintf("optimistic concurrency conflict on %s: expected version %d, actual %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// ValidationError indica que una mutación viola un invariante del dominio.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BatchFlushError envuelve el fallo de una sentencia (o del commit) del lote
// al que pertenecía el comando.
type BatchFlushError struct {
	Kind        string
	AggregateID string
	Err         error
}

func (e *BatchFlushError) Error() string {
	if e.AggregateID == "" {
		return fmt.Sprintf("batch flush failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("batch flush failed (%s %s): %v", e.Kind, e.AggregateID, e.Err)
}

func (e *BatchFlushError) Is(target error) bool {
	return target == ErrBatchFlush
}

func (e *BatchFlushError) Unwrap() error {
	return e.Err
}
