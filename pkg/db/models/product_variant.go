package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVariant is a size/color combination of a product with its own stock
// count. PriceCents overrides the product price when set.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Size       *string   `gorm:"column:size"`
	Color      *string   `gorm:"column:color"`
	PriceCents *int      `gorm:"column:price_cents"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
