package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/domain/aggregate"
	"github.com/davicafu/hexaledger/internal/shared/infra/uow"
	sharedUtils "github.com/davicafu/hexaledger/internal/shared/infra/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnitOfWork es lo que el servicio necesita de la unidad de trabajo.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repos sharedDomain.Repositories) error) (*uow.Receipt, error)
}

// --- Comandos ---

type CommandMeta struct {
	CorrelationID string
	UserID        string
}

type CreateProduct struct {
	CommandMeta
	ID          string // opcional; si va vacío se genera
	Name        string
	Description string
	PriceCents  int64
	Stock       int
}

type RenameProduct struct {
	CommandMeta
	ID              string
	ExpectedVersion int64
	Name            string
	Description     string
}

type ChangePrice struct {
	CommandMeta
	ID              string
	ExpectedVersion int64
	PriceCents      int64
}

type AdjustStock struct {
	CommandMeta
	ID              string
	ExpectedVersion int64
	Delta           int
}

type DiscontinueProduct struct {
	CommandMeta
	ID              string
	ExpectedVersion int64
}

// CommandResult devuelve la versión resultante y el recibo de la unidad.
// La escritura solo es durable cuando el recibo se resuelve sin error.
type CommandResult struct {
	AggregateID string
	Version     int64
	Receipt     *uow.Receipt
}

// ProductService define los casos de uso del catálogo.
type ProductService struct {
	uow       UnitOfWork
	snapshots sharedDomain.SnapshotRepository
	views     catalogDomain.ProductViewStore
	log       *zap.Logger
}

func NewProductService(
	unitOfWork UnitOfWork,
	snapshots sharedDomain.SnapshotRepository,
	views catalogDomain.ProductViewStore,
	log *zap.Logger,
) *ProductService {
	return &ProductService{
		uow:       unitOfWork,
		snapshots: snapshots,
		views:     views,
		log:       log,
	}
}

// CreateProduct crea el producto en versión 0.
func (s *ProductService) CreateProduct(ctx context.Context, cmd CreateProduct) (*CommandResult, error) {
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := s.metadata(cmd.CommandMeta)
	state := catalogDomain.NewProduct(cmd.Name, cmd.Description, cmd.PriceCents, cmd.Stock)

	var version int64
	receipt, err := s.uow.WithTransaction(ctx, func(ctx context.Context, repos sharedDomain.Repositories) error {
		// un id elegido por el cliente puede estar ya en uso
		if cmd.ID != "" {
			existing, err := repos.Snapshots.GetSnapshot(ctx, id)
			switch {
			case err == nil:
				return &sharedDomain.ConcurrencyError{AggregateID: id, Expected: -1, Actual: existing.Version}
			case !errors.Is(err, sharedDomain.ErrNotFound):
				return err
			}
		}

		agg, err := aggregate.Create(catalogDomain.ProductKind, id, state, meta)
		if err != nil {
			return err
		}
		version = agg.Version()
		return agg.HandOff(ctx, repos)
	})
	if err != nil {
		s.logFailure("create", id, err)
		return nil, err
	}

	s.log.Info("🆕 Producto encolado", zap.String("product_id", id), zap.String("correlation_id", meta.CorrelationID))
	return &CommandResult{AggregateID: id, Version: version, Receipt: receipt}, nil
}

func (s *ProductService) RenameProduct(ctx context.Context, cmd RenameProduct) (*CommandResult, error) {
	return s.mutate(ctx, cmd.ID, cmd.ExpectedVersion, catalogDomain.ActionRenamed, cmd.CommandMeta, func(p *catalogDomain.Product) error {
		return p.Rename(cmd.Name, cmd.Description)
	})
}

func (s *ProductService) ChangePrice(ctx context.Context, cmd ChangePrice) (*CommandResult, error) {
	return s.mutate(ctx, cmd.ID, cmd.ExpectedVersion, catalogDomain.ActionRepriced, cmd.CommandMeta, func(p *catalogDomain.Product) error {
		return p.ChangePrice(cmd.PriceCents)
	})
}

func (s *ProductService) AdjustStock(ctx context.Context, cmd AdjustStock) (*CommandResult, error) {
	return s.mutate(ctx, cmd.ID, cmd.ExpectedVersion, catalogDomain.ActionStockAdjusted, cmd.CommandMeta, func(p *catalogDomain.Product) error {
		return p.AdjustStock(cmd.Delta)
	})
}

func (s *ProductService) Discontinue(ctx context.Context, cmd DiscontinueProduct) (*CommandResult, error) {
	return s.mutate(ctx, cmd.ID, cmd.ExpectedVersion, catalogDomain.ActionDiscontinued, cmd.CommandMeta, func(p *catalogDomain.Product) error {
		return p.Discontinue()
	})
}

// mutate carga el snapshot, aplica el cambio con la versión esperada y lo entrega.
func (s *ProductService) mutate(
	ctx context.Context,
	id string,
	expected int64,
	action string,
	cmdMeta CommandMeta,
	fn func(*catalogDomain.Product) error,
) (*CommandResult, error) {
	meta := s.metadata(cmdMeta)

	var version int64
	receipt, err := s.uow.WithTransaction(ctx, func(ctx context.Context, repos sharedDomain.Repositories) error {
		snap, err := repos.Snapshots.GetSnapshot(ctx, id)
		if err != nil {
			return err
		}
		agg, err := aggregate.LoadFromSnapshot[catalogDomain.Product](catalogDomain.ProductKind, snap)
		if err != nil {
			return err
		}
		if err := agg.Mutate(expected, action, meta, fn); err != nil {
			return err
		}
		version = agg.Version()
		return agg.HandOff(ctx, repos)
	})
	if err != nil {
		s.logFailure(action, id, err)
		return nil, err
	}

	s.log.Info("✏️ Cambio de producto encolado",
		zap.String("product_id", id),
		zap.String("action", action),
		zap.Int64("version", version),
		zap.String("correlation_id", meta.CorrelationID),
	)
	return &CommandResult{AggregateID: id, Version: version, Receipt: receipt}, nil
}

// GetProduct lee la vista proyectada y, si aún no existe, el snapshot.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*catalogDomain.ProductView, error) {
	if s.views != nil {
		view, err := s.views.Get(ctx, id)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, sharedDomain.ErrNotFound) {
			s.log.Warn("⚠️ Read model no disponible, se usa el snapshot", zap.String("product_id", id), zap.Error(err))
		}
	}

	var snap *sharedDomain.SnapshotRecord
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		snap, errRetry = s.snapshots.GetSnapshot(ctx, id)
		if errors.Is(errRetry, sharedDomain.ErrNotFound) {
			return nil
		}
		return errRetry
	})
	if err != nil {
		s.log.Error("Failed to fetch product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	if snap == nil {
		return nil, sharedDomain.ErrNotFound
	}

	agg, err := aggregate.LoadFromSnapshot[catalogDomain.Product](catalogDomain.ProductKind, snap)
	if err != nil {
		return nil, err
	}
	view := catalogDomain.ViewFromProduct(agg.ID(), agg.Version(), agg.State(), time.Time{})
	return &view, nil
}

func (s *ProductService) metadata(m CommandMeta) aggregate.Metadata {
	if m.CorrelationID == "" {
		m.CorrelationID = uuid.NewString()
	}
	return aggregate.Metadata{CorrelationID: m.CorrelationID, UserID: m.UserID}
}

func (s *ProductService) logFailure(action, id string, err error) {
	switch {
	case errors.Is(err, sharedDomain.ErrValidation), errors.Is(err, sharedDomain.ErrNotFound), errors.Is(err, sharedDomain.ErrConcurrencyConflict):
		s.log.Warn("Product command rejected", zap.String("action", action), zap.String("product_id", id), zap.Error(err))
	default:
		s.log.Error("Product command failed", zap.String("action", action), zap.String("product_id", id), zap.Error(fmt.Errorf("%s: %w", action, err)))
	}
}
