package mocks

import (
	"context"
	"time"

	"github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOutboxRelayRepository simula el lado publisher del outbox
type MockOutboxRelayRepository struct {
	mock.Mock
}

func (m *MockOutboxRelayRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, now, limit)
	events, _ := args.Get(0).([]domain.OutboxEvent)
	return events, args.Error(1)
}

func (m *MockOutboxRelayRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockOutboxRelayRepository) MarkRetry(ctx context.Context, id uuid.UUID, now time.Time, attempt int, nextRetryAt time.Time, status domain.OutboxStatus, lastErr string) error {
	args := m.Called(ctx, id, now, attempt, nextRetryAt, status, lastErr)
	return args.Error(0)
}

func (m *MockOutboxRelayRepository) Summary(ctx context.Context) (domain.OutboxSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.OutboxSummary), args.Error(1)
}

func (m *MockOutboxRelayRepository) RequeueFailed(ctx context.Context, limit int, now time.Time) (int, error) {
	args := m.Called(ctx, limit, now)
	return args.Int(0), args.Error(1)
}

var _ domain.OutboxRelayRepository = (*MockOutboxRelayRepository)(nil)

// MockPublisher simula un publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event interface{}) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockProjection simula un ProjectionService
type MockProjection struct {
	mock.Mock
}

func (m *MockProjection) HandleEvent(ctx context.Context, evt domain.EventRecord, repos domain.Repositories) error {
	args := m.Called(ctx, evt, repos)
	return args.Error(0)
}

var _ domain.ProjectionService = (*MockProjection)(nil)
