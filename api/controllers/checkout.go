package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/api/middleware"
	"github.com/aurelia-commerce/storefront-backend/api/responses"
	"github.com/aurelia-commerce/storefront-backend/api/validators"
	internalorders "github.com/aurelia-commerce/storefront-backend/internal/orders"
	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
)

// Checkout places an order. Authenticated callers get the order attached to
// their account; anonymous callers must supply an email.
func Checkout(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, _ := middleware.IdentityFromContext(r.Context())

		items := make([]internalorders.CheckoutItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalorders.CheckoutItemInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}

		order, err := svc.Checkout(r.Context(), identity, internalorders.CheckoutInput{
			Email: payload.Email,
			Items: items,
			Shipping: internalorders.ShippingAddressInput{
				Name:    payload.Shipping.Name,
				Street:  payload.Shipping.Street,
				City:    payload.Shipping.City,
				Zip:     payload.Shipping.Zip,
				Country: payload.Shipping.Country,
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(*order))
	}
}

type checkoutRequest struct {
	Email    string                `json:"email,omitempty" validate:"omitempty,email"`
	Items    []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Shipping shippingRequest       `json:"shipping" validate:"required"`
}

type checkoutItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

type shippingRequest struct {
	Name    string `json:"name" validate:"required"`
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required"`
}
