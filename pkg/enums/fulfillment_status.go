package enums

// FulfillmentStatus is the fulfillment observation axis derived from OrderStatus.
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusFulfilled   FulfillmentStatus = "fulfilled"
	FulfillmentStatusReturned    FulfillmentStatus = "returned"
	FulfillmentStatusVoid        FulfillmentStatus = "void"
)

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// FulfillmentStatusFor projects the canonical order status onto the
// fulfillment axis.
func FulfillmentStatusFor(status OrderStatus, cancelled bool) FulfillmentStatus {
	if cancelled || status == OrderStatusCancelled || status == OrderStatusExpired {
		return FulfillmentStatusVoid
	}
	switch status {
	case OrderStatusPendingPayment:
		return FulfillmentStatusUnfulfilled
	case OrderStatusReturned:
		return FulfillmentStatusReturned
	default:
		return FulfillmentStatusFulfilled
	}
}
