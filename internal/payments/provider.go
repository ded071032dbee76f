package payments

import (
	"context"
	"fmt"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/square"
)

// CaptureInput carries what the provider needs to charge a customer.
type CaptureInput struct {
	SourceID       string
	AmountCents    int
	Currency       string
	OrderNumber    int64
	IdempotencyKey string
}

// RefundInput carries what the provider needs to return money.
type RefundInput struct {
	PaymentReference string
	AmountCents      int
	Currency         string
	Reason           string
	IdempotencyKey   string
}

// Provider abstracts the payment gateway so services can be tested with stubs.
type Provider interface {
	Capture(ctx context.Context, input CaptureInput) (reference string, err error)
	Refund(ctx context.Context, input RefundInput) (reference string, err error)
}

// gateway is the slice of the Square client the provider needs.
type gateway interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
}

type squareProvider struct {
	client gateway
}

// NewSquareProvider wraps the Square client behind the Provider interface.
func NewSquareProvider(client *square.Client) (Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &squareProvider{client: client}, nil
}

func (p *squareProvider) Capture(ctx context.Context, input CaptureInput) (string, error) {
	if input.SourceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	if input.AmountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payment, err := p.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    int64(input.AmountCents),
		Currency:       input.Currency,
		SourceID:       input.SourceID,
		IdempotencyKey: input.IdempotencyKey,
		ReferenceID:    fmt.Sprintf("order-%d", input.OrderNumber),
	})
	if err != nil {
		return "", err
	}
	if payment == nil || payment.GetID() == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment gateway returned no payment id")
	}
	return *payment.GetID(), nil
}

func (p *squareProvider) Refund(ctx context.Context, input RefundInput) (string, error) {
	if input.PaymentReference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if input.AmountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	refund, err := p.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      input.PaymentReference,
		AmountCents:    int64(input.AmountCents),
		Currency:       input.Currency,
		Reason:         input.Reason,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	if refund == nil || refund.GetID() == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment gateway returned no refund id")
	}
	return refund.GetID(), nil
}
