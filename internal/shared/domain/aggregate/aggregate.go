// Package aggregate implementa el protocolo de concurrencia optimista que usan
// los agregados: cargar o crear, mutar comprobando la versión y entregar los
// eventos no confirmados a los repositorios.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
)

// Stage es la fase del ciclo de vida de un agregado en memoria.
type Stage string

const (
	StageLoaded    Stage = "loaded"
	StageMutated   Stage = "mutated"
	StageHandedOff Stage = "handed_off"
)

const createdAction = "created"

// Metadata viaja con cada comando y acaba en el evento.
type Metadata struct {
	CorrelationID string
	UserID        string
}

// Validator lo implementan los estados que tienen invariantes propios.
type Validator interface {
	Validate() error
}

var now = func() time.Time { return time.Now().UTC() }

// Aggregate envuelve el estado S con su identidad, versión y eventos.
// No es seguro para uso concurrente: vive lo que dura un comando.
type Aggregate[S any] struct {
	id            string
	kind          string
	version       int64
	state         S
	correlationID string
	stage         Stage
	committed     []Event
	uncommitted   []Event
}

// Create crea el agregado en versión 0 con un evento "<kind>.created".
func Create[S any](kind, id string, state S, meta Metadata) (*Aggregate[S], error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if err := validate(&state); err != nil {
		return nil, err
	}

	newState, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s state: %w", kind, err)
	}

	a := &Aggregate[S]{
		id:            id,
		kind:          kind,
		version:       0,
		state:         state,
		correlationID: meta.CorrelationID,
		stage:         StageMutated,
	}
	a.uncommitted = append(a.uncommitted, Event{
		AggregateID:   id,
		Type:          eventType(kind, createdAction),
		Version:       0,
		CorrelationID: meta.CorrelationID,
		UserID:        meta.UserID,
		OccurredAt:    now(),
		PriorState:    json.RawMessage("null"),
		NewState:      newState,
	})
	return a, nil
}

// LoadFromSnapshot reconstruye el agregado desde su snapshot, sin reproducir eventos.
func LoadFromSnapshot[S any](kind string, row *domain.SnapshotRecord) (*Aggregate[S], error) {
	if row == nil {
		return nil, domain.ErrNotFound
	}
	var state S
	if err := json.Unmarshal(row.Payload, &state); err != nil {
		return nil, fmt.Errorf("invalid snapshot payload for %s %s: %w", kind, row.AggregateID, err)
	}
	return &Aggregate[S]{
		id:            row.AggregateID,
		kind:          kind,
		version:       row.Version,
		state:         state,
		correlationID: row.CorrelationID,
		stage:         StageLoaded,
	}, nil
}

// Mutate comprueba expected contra la versión en memoria y aplica fn sobre una
// copia del estado. Si algo falla el agregado queda intacto.
func (a *Aggregate[S]) Mutate(expected int64, action string, meta Metadata, fn func(*S) error) error {
	if expected != a.version {
		return &domain.ConcurrencyError{AggregateID: a.id, Expected: expected, Actual: a.version}
	}

	prior, err := json.Marshal(a.state)
	if err != nil {
		return fmt.Errorf("failed to encode %s state: %w", a.kind, err)
	}

	// copia profunda: fn nunca toca el estado vigente
	var next S
	if err := json.Unmarshal(prior, &next); err != nil {
		return fmt.Errorf("failed to copy %s state: %w", a.kind, err)
	}
	if err := fn(&next); err != nil {
		return asValidation(err)
	}
	if err := validate(&next); err != nil {
		return err
	}

	newState, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s state: %w", a.kind, err)
	}

	a.state = next
	a.version++
	a.correlationID = meta.CorrelationID
	a.stage = StageMutated
	a.uncommitted = append(a.uncommitted, Event{
		AggregateID:   a.id,
		Type:          eventType(a.kind, action),
		Version:       a.version,
		CorrelationID: meta.CorrelationID,
		UserID:        meta.UserID,
		OccurredAt:    now(),
		PriorState:    prior,
		NewState:      newState,
	})
	return nil
}

func (a *Aggregate[S]) ID() string            { return a.id }
func (a *Aggregate[S]) Kind() string          { return a.kind }
func (a *Aggregate[S]) Version() int64        { return a.version }
func (a *Aggregate[S]) Stage() Stage          { return a.stage }
func (a *Aggregate[S]) CorrelationID() string { return a.correlationID }

// State devuelve una copia superficial del estado actual.
func (a *Aggregate[S]) State() S {
	return a.state
}

// Uncommitted devuelve los eventos pendientes de entregar.
func (a *Aggregate[S]) Uncommitted() []Event {
	out := make([]Event, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

// Committed devuelve los eventos ya entregados a los repositorios.
func (a *Aggregate[S]) Committed() []Event {
	out := make([]Event, len(a.committed))
	copy(out, a.committed)
	return out
}

func eventType(kind, action string) string {
	return kind + "." + action
}

func validate[S any](state *S) error {
	v, ok := any(state).(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return asValidation(err)
	}
	return nil
}

func asValidation(err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrValidation, err)
}
