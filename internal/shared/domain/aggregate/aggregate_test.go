package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func (c *counter) Validate() error {
	if c.Count < 0 {
		return domain.NewValidationError("count", "must not be negative")
	}
	return nil
}

func newCounter(t *testing.T) *Aggregate[counter] {
	t.Helper()
	agg, err := Create("counter", "c-1", counter{Name: "visits"}, Metadata{CorrelationID: "corr-1", UserID: "u-1"})
	require.NoError(t, err)
	return agg
}

func TestCreate_EmitsCreatedEventAtVersionZero(t *testing.T) {
	agg := newCounter(t)

	assert.Equal(t, int64(0), agg.Version())
	assert.Equal(t, StageMutated, agg.Stage())

	events := agg.Uncommitted()
	require.Len(t, events, 1)
	assert.Equal(t, "counter.created", events[0].Type)
	assert.Equal(t, int64(0), events[0].Version)
	assert.Equal(t, "corr-1", events[0].CorrelationID)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.JSONEq(t, `null`, string(events[0].PriorState))
	assert.JSONEq(t, `{"name":"visits","count":0,"tags":null}`, string(events[0].NewState))
}

func TestCreate_RejectsInvalidState(t *testing.T) {
	_, err := Create("counter", "c-1", counter{Count: -1}, Metadata{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Create("counter", "", counter{}, Metadata{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMutate_IncrementsVersionByOne(t *testing.T) {
	agg := newCounter(t)

	err := agg.Mutate(0, "incremented", Metadata{CorrelationID: "corr-2"}, func(c *counter) error {
		c.Count++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), agg.Version())
	assert.Equal(t, 1, agg.State().Count)

	events := agg.Uncommitted()
	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, "counter.incremented", last.Type)
	assert.Equal(t, int64(1), last.Version)
	assert.Equal(t, "corr-2", last.CorrelationID)
	assert.JSONEq(t, `{"name":"visits","count":0,"tags":null}`, string(last.PriorState))
	assert.JSONEq(t, `{"name":"visits","count":1,"tags":null}`, string(last.NewState))
}

func TestMutate_StaleVersionLeavesAggregateUntouched(t *testing.T) {
	agg := newCounter(t)
	require.NoError(t, agg.Mutate(0, "incremented", Metadata{}, func(c *counter) error { c.Count++; return nil }))

	called := false
	err := agg.Mutate(0, "incremented", Metadata{}, func(c *counter) error {
		called = true
		return nil
	})

	var conflict *domain.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Equal(t, int64(0), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Actual)
	assert.False(t, called)
	assert.Equal(t, int64(1), agg.Version())
	assert.Len(t, agg.Uncommitted(), 2)
}

func TestMutate_FailedMutationDoesNotLeak(t *testing.T) {
	agg := newCounter(t)

	tests := []struct {
		name string
		fn   func(c *counter) error
	}{
		{
			name: "fn devuelve error",
			fn: func(c *counter) error {
				c.Tags = append(c.Tags, "leak")
				return errors.New("not allowed")
			},
		},
		{
			name: "el estado resultante no valida",
			fn: func(c *counter) error {
				c.Tags = append(c.Tags, "leak")
				c.Count = -5
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := agg.Mutate(0, "broken", Metadata{}, tt.fn)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, int64(0), agg.Version())
			assert.Empty(t, agg.State().Tags)
			assert.Len(t, agg.Uncommitted(), 1)
		})
	}
}

func TestLoadFromSnapshot(t *testing.T) {
	payload, _ := json.Marshal(counter{Name: "visits", Count: 7})
	agg, err := LoadFromSnapshot[counter]("counter", &domain.SnapshotRecord{
		AggregateID:   "c-1",
		CorrelationID: "corr-9",
		Version:       7,
		Payload:       payload,
	})
	require.NoError(t, err)

	assert.Equal(t, "c-1", agg.ID())
	assert.Equal(t, int64(7), agg.Version())
	assert.Equal(t, 7, agg.State().Count)
	assert.Equal(t, StageLoaded, agg.Stage())
	assert.Empty(t, agg.Uncommitted())

	_, err = LoadFromSnapshot[counter]("counter", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = LoadFromSnapshot[counter]("counter", &domain.SnapshotRecord{AggregateID: "c-2", Payload: []byte("{")})
	assert.Error(t, err)
}

func TestHandOff_WritesEventOutboxAndSnapshot(t *testing.T) {
	repos := mocks.NewInMemoryRepositories()
	agg := newCounter(t)
	require.NoError(t, agg.Mutate(0, "incremented", Metadata{CorrelationID: "corr-2"}, func(c *counter) error { c.Count = 3; return nil }))

	require.NoError(t, agg.HandOff(context.Background(), repos.Bundle()))

	require.Len(t, repos.Events, 2)
	require.Len(t, repos.Outbox, 2)
	for i, evt := range repos.Events {
		assert.Equal(t, int64(i), evt.Version)
		assert.Equal(t, evt.AggregateID, repos.Outbox[i].AggregateID)
		assert.Equal(t, evt.EventType, repos.Outbox[i].EventType)
		assert.Equal(t, domain.OutboxPending, repos.Outbox[i].Status)
		assert.Equal(t, domain.IdempotencyKeyFor("c-1", int64(i)), repos.Outbox[i].IdempotencyKey)
		assert.Equal(t, int64(i), repos.Outbox[i].Version)
	}
	assert.NotEqual(t, repos.Outbox[0].ID, repos.Outbox[1].ID)

	snap := repos.Snapshots["c-1"]
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, "corr-2", snap.CorrelationID)
	assert.JSONEq(t, `{"name":"visits","count":3,"tags":null}`, string(snap.Payload))

	decoded, err := DecodeEvent(repos.Events[1])
	require.NoError(t, err)
	assert.Equal(t, "counter.incremented", decoded.Type)

	assert.Empty(t, agg.Uncommitted())
	assert.Len(t, agg.Committed(), 2)
	assert.Equal(t, StageHandedOff, agg.Stage())

	// Segunda entrega sin cambios: no escribe nada
	require.NoError(t, agg.HandOff(context.Background(), repos.Bundle()))
	assert.Len(t, repos.Events, 2)
}

func TestHandOff_PropagatesRepositoryError(t *testing.T) {
	repos := mocks.NewInMemoryRepositories()
	repos.FailOn = "outbox"
	repos.FailErr = domain.ErrCapacityExceeded

	agg := newCounter(t)
	err := agg.HandOff(context.Background(), repos.Bundle())

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Len(t, agg.Uncommitted(), 1)
	assert.Empty(t, repos.Snapshots)
}
