package enums

// PaymentStatus is the payment observation axis derived from OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusVoid     PaymentStatus = "void"
)

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// PaymentStatusFor projects the canonical order status onto the payment axis.
func PaymentStatusFor(status OrderStatus, cancelled bool) PaymentStatus {
	if cancelled || status == OrderStatusCancelled || status == OrderStatusExpired {
		return PaymentStatusVoid
	}
	switch status {
	case OrderStatusPendingPayment:
		return PaymentStatusPending
	case OrderStatusReturned:
		return PaymentStatusRefunded
	default:
		return PaymentStatusPaid
	}
}
