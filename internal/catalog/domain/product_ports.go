package domain

import (
	"context"
	"fmt"
	"time"
)

// ProductView es el modelo de lectura que mantienen las proyecciones.
type ProductView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ViewFromProduct arma la vista a partir del estado y su versión.
func ViewFromProduct(id string, version int64, p Product, updatedAt time.Time) ProductView {
	return ProductView{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Stock:       p.Stock,
		Active:      p.Active,
		Version:     version,
		UpdatedAt:   updatedAt,
	}
}

// ---------- Interfaces (Ports) ----------

// ProductViewStore guarda las vistas de producto.
type ProductViewStore interface {
	// Upsert no debe reemplazar una vista con versión mayor o igual.
	Upsert(ctx context.Context, v ProductView) error

	// Debe devolver sharedDomain.ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*ProductView, error)
}

// EventLog guarda cada evento confirmado para analítica.
type EventLog interface {
	Append(ctx context.Context, e LoggedEvent) error
}

// ActivityReader lee del log analítico los eventos agregados por día.
type ActivityReader interface {
	GetDailyActivity(ctx context.Context, start, end time.Time) ([]DailyActivity, error)
}

// DailyActivity cuenta eventos por día y tipo.
type DailyActivity struct {
	Day       time.Time `json:"day"`
	EventType string    `json:"event_type"`
	Count     uint64    `json:"count"`
}

// LoggedEvent es la fila que llega al log analítico.
type LoggedEvent struct {
	AggregateID   string
	Version       int64
	EventType     string
	CorrelationID string
	UserID        string
	PriceCents    int64
	Stock         int
	Active        bool
	OccurredAt    time.Time
}

// ---------- Helpers comunes (cache keys, etc.) ----------

// CacheKeyByID forma una key consistente para la vista de un producto.
func CacheKeyByID(id string) string {
	return fmt.Sprintf("product:view:%s", id)
}
