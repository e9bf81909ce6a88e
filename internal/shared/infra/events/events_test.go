package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	sharedEvents "github.com/davicafu/hexaledger/internal/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu       sync.Mutex
	payloads [][]byte
	got      chan struct{}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, key string, payload []byte) {
	h.mu.Lock()
	h.payloads = append(h.payloads, payload)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func TestBuildMessage_KeyAndIdempotencyHeader(t *testing.T) {
	evt := sharedEvents.IntegrationEvent{
		Type:           "product.created",
		AggregateID:    "p-1",
		IdempotencyKey: "p-1:0",
		Data:           json.RawMessage(`{}`),
	}

	msg, err := buildMessage(evt)
	require.NoError(t, err)

	assert.Equal(t, "p-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, idempotencyHeader, msg.Headers[0].Key)
	assert.Equal(t, "p-1:0", string(msg.Headers[0].Value))

	var decoded sharedEvents.IntegrationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "product.created", decoded.Type)
}

func TestBuildMessage_PlainValue(t *testing.T) {
	msg, err := buildMessage(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Nil(t, msg.Key)
	assert.Empty(t, msg.Headers)
}

func TestInMemoryEventBus_DeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus("catalog-events")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{got: make(chan struct{}, 2)}
	ConsumeChan(ctx, bus.Subscribe(4), handler, zap.NewNop())

	require.NoError(t, bus.Publish(ctx, sharedEvents.IntegrationEvent{Type: "product.created", AggregateID: "p-1"}))
	require.NoError(t, bus.Publish(ctx, sharedEvents.IntegrationEvent{Type: "product.renamed", AggregateID: "p-1"}))

	for i := 0; i < 2; i++ {
		select {
		case <-handler.got:
		case <-time.After(2 * time.Second):
			t.Fatal("evento no entregado")
		}
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	var first sharedEvents.IntegrationEvent
	require.NoError(t, json.Unmarshal(handler.payloads[0], &first))
	assert.Equal(t, "product.created", first.Type)
	assert.Equal(t, "catalog-events", bus.Topic())
}

func TestInMemoryEventBus_CancelledContext(t *testing.T) {
	bus := NewInMemoryEventBus("t")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, "x"), context.Canceled)
}
