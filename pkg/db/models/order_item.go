package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of a purchased line at checkout time.
// Product name, variant attributes and price are frozen so later catalog
// edits never rewrite past orders.
type OrderItem struct {
	ID                      uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                 uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID               uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID               *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Name                    string     `gorm:"column:name;not null"`
	Size                    *string    `gorm:"column:size"`
	Color                   *string    `gorm:"column:color"`
	UnitPriceCents          int        `gorm:"column:unit_price_cents;not null"`
	Quantity                int        `gorm:"column:quantity;not null"`
	QuantityReturned        int        `gorm:"column:quantity_returned;not null;default:0"`
	QuantityReturnRequested int        `gorm:"column:quantity_return_requested;not null;default:0"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// ReturnableQuantity is how many units can still enter a new return request.
func (i OrderItem) ReturnableQuantity() int {
	return i.Quantity - i.QuantityReturned - i.QuantityReturnRequested
}

// FullyReturned reports whether every purchased unit has been returned.
func (i OrderItem) FullyReturned() bool {
	return i.QuantityReturned == i.Quantity
}
