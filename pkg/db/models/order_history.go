package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

// OrderHistory is one append-only journal entry on an order. Entries are
// never updated or deleted.
type OrderHistory struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus    `gorm:"column:status;type:order_status;not null"`
	Actor     enums.Actor          `gorm:"column:actor;type:actor;not null"`
	ActorName *string              `gorm:"column:actor_name"`
	Reason    string               `gorm:"column:reason;not null"`
	Details   types.HistoryDetails `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (OrderHistory) TableName() string {
	return "order_history"
}
