package application

import (
	"context"
	"testing"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	viewcache "github.com/davicafu/hexaledger/internal/catalog/infra/outbound/readmodel/cache"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/domain/aggregate"
	"github.com/davicafu/hexaledger/tests/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func productRecord(t *testing.T, id string, p catalogDomain.Product) sharedDomain.EventRecord {
	t.Helper()
	agg, err := aggregate.Create(catalogDomain.ProductKind, id, p, aggregate.Metadata{CorrelationID: "corr-1", UserID: "u-1"})
	require.NoError(t, err)
	rec, err := agg.Uncommitted()[0].Record()
	require.NoError(t, err)
	return rec
}

func TestProductProjection_HandleEvent(t *testing.T) {
	views := viewcache.NewProductViewStore(mocks.NewDummyCache())
	projection := NewProductProjection(views, zap.NewNop())
	ctx := context.Background()

	rec := productRecord(t, "p-1", catalogDomain.NewProduct("Lamp", "", 10, 1))
	require.NoError(t, projection.HandleEvent(ctx, rec, sharedDomain.Repositories{}))

	view, err := views.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", view.Name)
	assert.Equal(t, rec.OccurredAt.UTC(), view.UpdatedAt.UTC())
}

func TestProductProjection_IgnoresOtherContexts(t *testing.T) {
	cache := mocks.NewDummyCache()
	projection := NewProductProjection(viewcache.NewProductViewStore(cache), zap.NewNop())

	err := projection.HandleEvent(context.Background(), sharedDomain.EventRecord{EventType: "order.created", Payload: []byte(`garbage`)}, sharedDomain.Repositories{})

	assert.NoError(t, err)
	assert.Zero(t, cache.Len())
}

func TestProductProjection_InvalidPayload(t *testing.T) {
	projection := NewProductProjection(viewcache.NewProductViewStore(mocks.NewDummyCache()), zap.NewNop())

	err := projection.HandleEvent(context.Background(), sharedDomain.EventRecord{
		AggregateID: "p-1",
		EventType:   catalogDomain.ProductCreated,
		Payload:     []byte(`{"newState": 42}`),
	}, sharedDomain.Repositories{})

	assert.Error(t, err)
}

func TestAnalyticsProjection_MapsEvent(t *testing.T) {
	eventLog := &recordingLog{}
	projection := NewAnalyticsProjection(eventLog)

	rec := productRecord(t, "p-1", catalogDomain.NewProduct("Lamp", "", 990, 7))
	require.NoError(t, projection.HandleEvent(context.Background(), rec, sharedDomain.Repositories{}))

	logged := eventLog.all()
	require.Len(t, logged, 1)
	assert.Equal(t, catalogDomain.LoggedEvent{
		AggregateID:   "p-1",
		Version:       0,
		EventType:     catalogDomain.ProductCreated,
		CorrelationID: "corr-1",
		UserID:        "u-1",
		PriceCents:    990,
		Stock:         7,
		Active:        true,
		OccurredAt:    logged[0].OccurredAt,
	}, logged[0])
}
