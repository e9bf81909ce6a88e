package cache

import (
	"context"
	"fmt"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	sharedCache "github.com/davicafu/hexaledger/internal/shared/infra/platform/cache"
)

// ProductViewStore guarda las vistas en la caché (Redis o memoria).
// Una entrada caducada se reconstruye desde el snapshot en la lectura.
type ProductViewStore struct {
	cache sharedCache.Cache
}

func NewProductViewStore(c sharedCache.Cache) *ProductViewStore {
	return &ProductViewStore{cache: c}
}

// Upsert ignora vistas más antiguas que la guardada. Solo la llama el
// despachador de proyecciones, que es una única goroutine.
func (s *ProductViewStore) Upsert(ctx context.Context, v catalogDomain.ProductView) error {
	var current catalogDomain.ProductView
	hit, err := s.cache.Get(ctx, catalogDomain.CacheKeyByID(v.ID), &current)
	if err != nil {
		return fmt.Errorf("failed to read product view %s: %w", v.ID, err)
	}
	if hit && current.Version >= v.Version {
		return nil
	}
	return s.cache.Set(ctx, catalogDomain.CacheKeyByID(v.ID), v, 0)
}

func (s *ProductViewStore) Get(ctx context.Context, id string) (*catalogDomain.ProductView, error) {
	var v catalogDomain.ProductView
	hit, err := s.cache.Get(ctx, catalogDomain.CacheKeyByID(id), &v)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, sharedDomain.ErrNotFound
	}
	return &v, nil
}
