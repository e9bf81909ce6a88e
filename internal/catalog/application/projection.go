package application

import (
	"context"
	"encoding/json"
	"fmt"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/domain/aggregate"
	"go.uber.org/zap"
)

// ProductProjection mantiene la vista de cada producto a partir de sus eventos.
type ProductProjection struct {
	views catalogDomain.ProductViewStore
	log   *zap.Logger
}

func NewProductProjection(views catalogDomain.ProductViewStore, log *zap.Logger) *ProductProjection {
	return &ProductProjection{views: views, log: log}
}

func (p *ProductProjection) HandleEvent(ctx context.Context, evt sharedDomain.EventRecord, _ sharedDomain.Repositories) error {
	if !catalogDomain.IsProductEvent(evt.EventType) {
		return nil
	}

	decoded, state, err := decodeProduct(evt)
	if err != nil {
		return err
	}

	view := catalogDomain.ViewFromProduct(decoded.AggregateID, decoded.Version, state, decoded.OccurredAt)
	if err := p.views.Upsert(ctx, view); err != nil {
		return fmt.Errorf("failed to project %s/%d: %w", evt.AggregateID, evt.Version, err)
	}

	p.log.Debug("Vista de producto actualizada",
		zap.String("product_id", view.ID),
		zap.Int64("version", view.Version),
	)
	return nil
}

// AnalyticsProjection copia cada evento de producto al log analítico.
type AnalyticsProjection struct {
	sink catalogDomain.EventLog
}

func NewAnalyticsProjection(sink catalogDomain.EventLog) *AnalyticsProjection {
	return &AnalyticsProjection{sink: sink}
}

func (p *AnalyticsProjection) HandleEvent(ctx context.Context, evt sharedDomain.EventRecord, _ sharedDomain.Repositories) error {
	if !catalogDomain.IsProductEvent(evt.EventType) {
		return nil
	}

	decoded, state, err := decodeProduct(evt)
	if err != nil {
		return err
	}

	return p.sink.Append(ctx, catalogDomain.LoggedEvent{
		AggregateID:   decoded.AggregateID,
		Version:       decoded.Version,
		EventType:     decoded.Type,
		CorrelationID: decoded.CorrelationID,
		UserID:        decoded.UserID,
		PriceCents:    state.PriceCents,
		Stock:         state.Stock,
		Active:        state.Active,
		OccurredAt:    decoded.OccurredAt,
	})
}

func decodeProduct(evt sharedDomain.EventRecord) (aggregate.Event, catalogDomain.Product, error) {
	decoded, err := aggregate.DecodeEvent(evt)
	if err != nil {
		return aggregate.Event{}, catalogDomain.Product{}, err
	}
	var state catalogDomain.Product
	if err := json.Unmarshal(decoded.NewState, &state); err != nil {
		return aggregate.Event{}, catalogDomain.Product{}, fmt.Errorf("invalid product state in %s/%d: %w", evt.AggregateID, evt.Version, err)
	}
	return decoded, state, nil
}
