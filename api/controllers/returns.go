package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/api/responses"
	"github.com/aurelia-commerce/storefront-backend/api/validators"
	"github.com/aurelia-commerce/storefront-backend/internal/returns"
	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
)

// RequestReturn opens a return request on a paid order.
func RequestReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		identity, orderID, err := callerAndOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnRequestBody
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Request(r.Context(), identity, orderID, returns.RequestInput{
			Items:  toReturnLines(payload.Items),
			Reason: payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}

// DecideReturn records the admin ruling on an open return request. Whatever
// part of the request is not accepted is rejected in the same ruling.
func DecideReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		identity, orderID, err := callerAndOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnDecisionBody
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Decide(r.Context(), identity, orderID, returns.DecisionInput{
			Accepted: toReturnLines(payload.Accepted),
			Note:     payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}

// RejectReturn turns an open return request down outright.
func RejectReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		identity, orderID, err := callerAndOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnRejectBody
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Reject(r.Context(), identity, orderID, returns.RejectInput{
			Reason: payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}

type returnLineBody struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

type returnRequestBody struct {
	Items  []returnLineBody `json:"items" validate:"required,min=1,dive"`
	Reason string           `json:"reason" validate:"required,max=500"`
}

type returnDecisionBody struct {
	Accepted []returnLineBody `json:"accepted" validate:"omitempty,dive"`
	Note     string           `json:"note,omitempty" validate:"omitempty,max=500"`
}

type returnRejectBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func toReturnLines(lines []returnLineBody) []returns.ReturnLineInput {
	out := make([]returns.ReturnLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, returns.ReturnLineInput{
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
	}
	return out
}
