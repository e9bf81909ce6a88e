package domain

// Acciones que emite el producto. El agregado las convierte en "product.<acción>".
const (
	ActionCreated       = "created"
	ActionRenamed       = "renamed"
	ActionRepriced      = "repriced"
	ActionStockAdjusted = "stock_adjusted"
	ActionDiscontinued  = "discontinued"
)

const (
	ProductCreated       = ProductKind + "." + ActionCreated
	ProductRenamed       = ProductKind + "." + ActionRenamed
	ProductRepriced      = ProductKind + "." + ActionRepriced
	ProductStockAdjusted = ProductKind + "." + ActionStockAdjusted
	ProductDiscontinued  = ProductKind + "." + ActionDiscontinued
)

const CatalogTopic = "catalog-events"

// LowStockThreshold: por debajo se avisa de reposición.
const LowStockThreshold = 5

func IsProductEvent(eventType string) bool {
	switch eventType {
	case ProductCreated, ProductRenamed, ProductRepriced, ProductStockAdjusted, ProductDiscontinued:
		return true
	}
	return false
}
