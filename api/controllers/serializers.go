package controllers

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/aurelia-commerce/storefront-backend/internal/orders"
	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

type orderResponse struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     int64               `json:"order_number"`
	Status          string              `json:"status"`
	IsCancelled     bool                `json:"is_cancelled"`
	Email           string              `json:"email"`
	Currency        string              `json:"currency"`
	ItemsTotalCents int                 `json:"items_total_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TaxCents        int                 `json:"tax_cents"`
	TotalCents      int                 `json:"total_cents"`
	Shipping        shippingResponse    `json:"shipping"`
	ReturnReason    *string             `json:"return_reason,omitempty"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

type shippingResponse struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type orderItemResponse struct {
	ItemID                  uuid.UUID  `json:"item_id"`
	ProductID               uuid.UUID  `json:"product_id"`
	VariantID               *uuid.UUID `json:"variant_id,omitempty"`
	Name                    string     `json:"name"`
	Size                    *string    `json:"size,omitempty"`
	Color                   *string    `json:"color,omitempty"`
	UnitPriceCents          int        `json:"unit_price_cents"`
	Quantity                int        `json:"quantity"`
	QuantityReturned        int        `json:"quantity_returned"`
	QuantityReturnRequested int        `json:"quantity_return_requested"`
}

type orderDetailResponse struct {
	orderResponse
	PaymentStatus       string `json:"payment_status"`
	FulfillmentStatus   string `json:"fulfillment_status"`
	RefundedAmountCents int    `json:"refunded_amount_cents"`
}

type historyEntryResponse struct {
	Status    string                `json:"status"`
	Actor     string                `json:"actor"`
	ActorName *string               `json:"actor_name,omitempty"`
	Reason    string                `json:"reason"`
	Details   *types.HistoryDetails `json:"details,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func newOrderResponse(order models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:                  item.ID,
			ProductID:               item.ProductID,
			VariantID:               item.VariantID,
			Name:                    item.Name,
			Size:                    item.Size,
			Color:                   item.Color,
			UnitPriceCents:          item.UnitPriceCents,
			Quantity:                item.Quantity,
			QuantityReturned:        item.QuantityReturned,
			QuantityReturnRequested: item.QuantityReturnRequested,
		})
	}

	return orderResponse{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status.String(),
		IsCancelled:     order.IsCancelled,
		Email:           order.Email,
		Currency:        string(order.Currency),
		ItemsTotalCents: order.ItemsTotalCents,
		ShippingCents:   order.ShippingCents,
		TaxCents:        order.TaxCents,
		TotalCents:      order.TotalCents,
		Shipping: shippingResponse{
			Name:    order.ShippingName,
			Street:  order.ShippingStreet,
			City:    order.ShippingCity,
			Zip:     order.ShippingZip,
			Country: order.ShippingCountry,
		},
		ReturnReason:    order.ReturnReason,
		RejectionReason: order.RejectionReason,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
		Items:           items,
	}
}

func newOrderDetailResponse(detail *internalorders.OrderDetail) orderDetailResponse {
	if detail == nil {
		return orderDetailResponse{}
	}
	return orderDetailResponse{
		orderResponse:       newOrderResponse(detail.Order),
		PaymentStatus:       string(detail.PaymentStatus),
		FulfillmentStatus:   string(detail.FulfillmentStatus),
		RefundedAmountCents: detail.RefundedAmountCents,
	}
}

func newHistoryResponse(entries []models.OrderHistory) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := historyEntryResponse{
			Status:    entry.Status.String(),
			Actor:     string(entry.Actor),
			ActorName: entry.ActorName,
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		}
		if !entry.Details.IsEmpty() {
			details := entry.Details
			resp.Details = &details
		}
		out = append(out, resp)
	}
	return out
}
