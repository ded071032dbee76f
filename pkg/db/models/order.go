package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
)

// Order is the customer order aggregate. Guest checkouts carry a nil UserID
// and an Email for correspondence.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber      int64             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Email            string            `gorm:"column:email;not null"`
	Currency         enums.Currency    `gorm:"column:currency;type:text;not null;default:'EUR'"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_payment'"`
	IsCancelled      bool              `gorm:"column:is_cancelled;not null;default:false"`
	ItemsTotalCents  int               `gorm:"column:items_total_cents;not null"`
	ShippingCents    int               `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents         int               `gorm:"column:tax_cents;not null;default:0"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	ShippingName     string            `gorm:"column:shipping_name;not null"`
	ShippingStreet   string            `gorm:"column:shipping_street;not null"`
	ShippingCity     string            `gorm:"column:shipping_city;not null"`
	ShippingZip      string            `gorm:"column:shipping_zip;not null"`
	ShippingCountry  string            `gorm:"column:shipping_country;not null"`
	ReturnReason     *string           `gorm:"column:return_reason"`
	RejectionReason  *string           `gorm:"column:rejection_reason"`
	PaymentReference *string           `gorm:"column:payment_reference"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History          []OrderHistory    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// BelongsTo reports whether the order is owned by the given user.
func (o Order) BelongsTo(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}
