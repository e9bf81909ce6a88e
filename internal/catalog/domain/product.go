package domain

import (
	"strings"
	"unicode/utf8"

	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
)

const ProductKind = "product"

const (
	MaxNameLength        = 120
	MaxDescriptionLength = 2000
)

// Product es el estado del agregado. Se guarda completo en el snapshot.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
}

// NewProduct crea un producto activo.
func NewProduct(name, description string, priceCents int64, stock int) Product {
	return Product{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		PriceCents:  priceCents,
		Stock:       stock,
		Active:      true,
	}
}

// Validate comprueba los invariantes; el agregado lo llama tras cada mutación.
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return sharedDomain.NewValidationError("name", "is required")
	case utf8.RuneCountInString(p.Name) > MaxNameLength:
		return sharedDomain.NewValidationError("name", "is too long")
	case utf8.RuneCountInString(p.Description) > MaxDescriptionLength:
		return sharedDomain.NewValidationError("description", "is too long")
	case p.PriceCents < 0:
		return sharedDomain.NewValidationError("price_cents", "must not be negative")
	case p.Stock < 0:
		return sharedDomain.NewValidationError("stock", "must not be negative")
	}
	return nil
}

// --- Métodos de dominio ---

func (p *Product) Rename(name, description string) error {
	if err := p.ensureActive(); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(name)
	p.Description = strings.TrimSpace(description)
	return nil
}

func (p *Product) ChangePrice(priceCents int64) error {
	if err := p.ensureActive(); err != nil {
		return err
	}
	if priceCents == p.PriceCents {
		return sharedDomain.NewValidationError("price_cents", "is unchanged")
	}
	p.PriceCents = priceCents
	return nil
}

// AdjustStock suma delta (negativo para retirar).
func (p *Product) AdjustStock(delta int) error {
	if err := p.ensureActive(); err != nil {
		return err
	}
	if delta == 0 {
		return sharedDomain.NewValidationError("delta", "must not be zero")
	}
	p.Stock += delta
	return nil
}

func (p *Product) Discontinue() error {
	if err := p.ensureActive(); err != nil {
		return err
	}
	p.Active = false
	return nil
}

func (p *Product) ensureActive() error {
	if !p.Active {
		return sharedDomain.NewValidationError("product", "is discontinued")
	}
	return nil
}
