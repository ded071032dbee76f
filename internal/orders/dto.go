package orders

import (
	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
)

// CheckoutItemInput is one requested line at checkout.
type CheckoutItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// ShippingAddressInput is the destination snapshot stored on the order.
type ShippingAddressInput struct {
	Name    string
	Street  string
	City    string
	Zip     string
	Country string
}

// CheckoutInput captures everything needed to place an order. Email is
// required for guest checkouts and optional otherwise.
type CheckoutInput struct {
	Email    string
	Items    []CheckoutItemInput
	Shipping ShippingAddressInput
}

// ConfirmPaymentInput carries the gateway payment source for capture.
type ConfirmPaymentInput struct {
	SourceID string
}

// CancelInput carries the customer-provided cancellation reason.
type CancelInput struct {
	Reason string
}

// OrderDetail is the read model returned to clients: the aggregate plus the
// payment and fulfillment projections derived from the canonical status.
type OrderDetail struct {
	Order               models.Order
	PaymentStatus       enums.PaymentStatus
	FulfillmentStatus   enums.FulfillmentStatus
	RefundedAmountCents int
}

// DetailFor derives the projected read model for an order. The refunded
// amount is a display figure recomputed from the line snapshots, not a
// record of gateway money movement.
func DetailFor(order models.Order) *OrderDetail {
	refunded := 0
	for _, item := range order.Items {
		refunded += item.UnitPriceCents * item.QuantityReturned
	}
	return &OrderDetail{
		Order:               order,
		PaymentStatus:       enums.PaymentStatusFor(order.Status, order.IsCancelled),
		FulfillmentStatus:   enums.FulfillmentStatusFor(order.Status, order.IsCancelled),
		RefundedAmountCents: refunded,
	}
}
