package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"

	// --- Importaciones compartidas ---
	"github.com/davicafu/hexaledger/internal/shared/domain/aggregate"
	sharedEvents "github.com/davicafu/hexaledger/internal/shared/events"
	sharedCache "github.com/davicafu/hexaledger/internal/shared/infra/platform/cache"
	sharedUtils "github.com/davicafu/hexaledger/internal/shared/infra/utils"
)

// DeliveredTTL es lo que se recuerda una entrega para descartar duplicados.
const DeliveredTTL = 24 * time.Hour

// ConsumerStats son contadores acumulados del consumidor.
type ConsumerStats struct {
	Handled    int64 `json:"handled"`
	Duplicates int64 `json:"duplicates"`
	LowStock   int64 `json:"low_stock"`
}

// ProductConsumer procesa los eventos de producto publicados por el relay.
// La entrega es at-least-once, así que deduplica por idempotency key.
type ProductConsumer struct {
	cache sharedCache.Cache
	log   *zap.Logger

	handled    atomic.Int64
	duplicates atomic.Int64
	lowStock   atomic.Int64
}

func NewProductConsumer(cache sharedCache.Cache, logger *zap.Logger) *ProductConsumer {
	return &ProductConsumer{
		cache: cache,
		log:   logger,
	}
}

// HandleMessage es el punto de entrada para un nuevo mensaje/evento.
func (c *ProductConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.log.Warn("Failed to unmarshal integration event for product", zap.String("key", key), zap.Error(err))
		return
	}
	if !catalogDomain.IsProductEvent(base.Type) {
		c.log.Warn("Unknown product event type", zap.String("type", base.Type), zap.String("key", key))
		return
	}
	if c.isDuplicate(ctx, base) {
		c.duplicates.Add(1)
		c.log.Info("Evento duplicado ignorado", zap.String("idempotency_key", base.IdempotencyKey))
		return
	}

	sharedUtils.UnmarshalAndHandle[aggregate.Event](c.log, base.Data, func(evt aggregate.Event) {
		c.handled.Add(1)

		switch base.Type {
		case catalogDomain.ProductStockAdjusted, catalogDomain.ProductCreated:
			c.checkStock(evt)
		case catalogDomain.ProductDiscontinued:
			c.log.Info("📦 Producto descatalogado", zap.String("product_id", evt.AggregateID), zap.Int64("version", evt.Version))
		default:
			c.log.Info("Product event received",
				zap.String("type", base.Type),
				zap.String("product_id", evt.AggregateID),
				zap.Int64("version", evt.Version),
			)
		}
	})
}

// isDuplicate registra la entrega; devuelve true si ya se había visto.
// Sin caché o sin clave no se puede deduplicar y se procesa.
func (c *ProductConsumer) isDuplicate(ctx context.Context, evt sharedEvents.IntegrationEvent) bool {
	key := evt.DeduplicationKey()
	if c.cache == nil || key == "" {
		return false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	added, err := c.cache.Add(cacheCtx, "delivered:"+key, evt.ID.String(), DeliveredTTL)
	if err != nil {
		c.log.Warn("⚠️ No se pudo registrar la entrega", zap.String("idempotency_key", key), zap.Error(err))
		return false
	}
	return !added
}

func (c *ProductConsumer) checkStock(evt aggregate.Event) {
	var p catalogDomain.Product
	if err := json.Unmarshal(evt.NewState, &p); err != nil {
		c.log.Warn("Failed to unmarshal product state", zap.String("product_id", evt.AggregateID), zap.Error(err))
		return
	}
	if p.Active && p.Stock < catalogDomain.LowStockThreshold {
		c.lowStock.Add(1)
		c.log.Warn("📉 Stock bajo",
			zap.String("product_id", evt.AggregateID),
			zap.Int("stock", p.Stock),
			zap.Int("threshold", catalogDomain.LowStockThreshold),
		)
	}
}

func (c *ProductConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:    c.handled.Load(),
		Duplicates: c.duplicates.Load(),
		LowStock:   c.lowStock.Load(),
	}
}
