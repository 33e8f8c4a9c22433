package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a tenant-scoped catalog entry. Items are never deleted by the core;
// deactivation is the only retirement path.
type Item struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	SKU           string
	Barcode       string
	Name          string
	UnitOfMeasure string
	Cost          decimal.Decimal
	Price         decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Summary is the projection of an item attached to document lines.
type Summary struct {
	ID            uuid.UUID       `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	Cost          decimal.Decimal `json:"cost"`
}

// Summary returns the line-level projection of the item.
func (i Item) Summary() Summary {
	return Summary{ID: i.ID, SKU: i.SKU, Name: i.Name, UnitOfMeasure: i.UnitOfMeasure, Cost: i.Cost}
}
