package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexaledger/internal/shared/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/davicafu/hexaledger/tests/mocks"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newWorker(repo *mocks.MockOutboxRelayRepository, publisher *mocks.MockPublisher, maxRetries int) *Worker {
	w := NewOutboxWorker(repo, publisher, time.Second, 10, maxRetries, zap.NewNop())
	w.now = func() time.Time { return fixedNow }
	return w
}

func TestOutboxWorker_ProcessBatch_Success(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)

	eventID := uuid.New()
	testEvent := sharedDomain.OutboxEvent{
		ID:             eventID,
		AggregateID:    "p-1",
		EventType:      "product.created",
		Payload:        []byte(`{"version":0}`),
		IdempotencyKey: "p-1:0",
	}

	repo.On("ClaimDue", mock.Anything, fixedNow, 10).Return([]sharedDomain.OutboxEvent{testEvent}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(evt sharedEvents.IntegrationEvent) bool {
		return evt.ID == eventID && evt.Type == "product.created" && evt.PartitionKey() == "p-1" && evt.IdempotencyKey == "p-1:0"
	})).Return(nil).Once()
	repo.On("MarkSent", mock.Anything, eventID, fixedNow).Return(nil).Once()

	worker := newWorker(repo, publisher, 3)

	// ACT
	sent := worker.ProcessBatch(context.Background())

	// ASSERT
	assert.Equal(t, 1, sent)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_ProcessBatch_PublisherFailsSchedulesRetry(t *testing.T) {
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)

	eventID := uuid.New()
	testEvent := sharedDomain.OutboxEvent{ID: eventID, EventType: "product.created", RetryCount: 2, Payload: []byte(`{}`)}

	repo.On("ClaimDue", mock.Anything, fixedNow, 10).Return([]sharedDomain.OutboxEvent{testEvent}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("kafka is down")).Once()
	// tercer intento: 1s << 2
	repo.On("MarkRetry", mock.Anything, eventID, fixedNow, 3, fixedNow.Add(4*time.Second), sharedDomain.OutboxPending, "kafka is down").Return(nil).Once()

	worker := newWorker(repo, publisher, 5)

	sent := worker.ProcessBatch(context.Background())

	assert.Zero(t, sent)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_MarksFailedWhenRetriesExhausted(t *testing.T) {
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)

	eventID := uuid.New()
	testEvent := sharedDomain.OutboxEvent{ID: eventID, EventType: "product.created", RetryCount: 2}

	repo.On("ClaimDue", mock.Anything, fixedNow, 10).Return([]sharedDomain.OutboxEvent{testEvent}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker rejected")).Once()
	repo.On("MarkRetry", mock.Anything, eventID, fixedNow, 3, mock.Anything, sharedDomain.OutboxFailed, "broker rejected").Return(nil).Once()

	worker := newWorker(repo, publisher, 3)
	worker.ProcessBatch(context.Background())

	repo.AssertExpectations(t)
}

func TestOutboxWorker_ProcessBatch_ClaimFails(t *testing.T) {
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)

	repo.On("ClaimDue", mock.Anything, fixedNow, 10).Return(nil, errors.New("db down")).Once()

	worker := newWorker(repo, publisher, 3)

	assert.Zero(t, worker.ProcessBatch(context.Background()))
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_MarkSentFailsIsNotCounted(t *testing.T) {
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)

	eventID := uuid.New()
	repo.On("ClaimDue", mock.Anything, fixedNow, 10).Return([]sharedDomain.OutboxEvent{{ID: eventID}}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("MarkSent", mock.Anything, eventID, fixedNow).Return(errors.New("queue full")).Once()

	worker := newWorker(repo, publisher, 3)

	assert.Zero(t, worker.ProcessBatch(context.Background()))
	repo.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxWorker_StartStopsOnCancel(t *testing.T) {
	repo := new(mocks.MockOutboxRelayRepository)
	publisher := new(mocks.MockPublisher)
	repo.On("ClaimDue", mock.Anything, mock.Anything, 10).Return(nil, nil)

	worker := NewOutboxWorker(repo, publisher, 5*time.Millisecond, 10, 3, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("el worker no se detuvo")
	}
}
