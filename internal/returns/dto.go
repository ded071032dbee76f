package returns

import "github.com/google/uuid"

// ReturnLineInput names one order item and a unit count.
type ReturnLineInput struct {
	ItemID   uuid.UUID
	Quantity int
}

// RequestInput is a customer's return request: which lines, how many units,
// and why.
type RequestInput struct {
	Items  []ReturnLineInput
	Reason string
}

// DecisionInput is the admin ruling on an open return request. Accepted
// quantities may cover all, part, or none of what was requested; whatever is
// not accepted is rejected.
type DecisionInput struct {
	Accepted []ReturnLineInput
	Note     string
}

// RejectInput carries the reason for turning a return request down outright.
type RejectInput struct {
	Reason string
}
