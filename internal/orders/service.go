package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aurelia-commerce/storefront-backend/internal/history"
	"github.com/aurelia-commerce/storefront-backend/internal/inventory"
	"github.com/aurelia-commerce/storefront-backend/internal/notify"
	"github.com/aurelia-commerce/storefront-backend/internal/payments"
	"github.com/aurelia-commerce/storefront-backend/pkg/config"
	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
	"github.com/aurelia-commerce/storefront-backend/pkg/metrics"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service executes the order lifecycle: placing, paying, cancelling and
// expiring orders.
type Service interface {
	Checkout(ctx context.Context, actor types.Identity, input CheckoutInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, actor types.Identity, orderID uuid.UUID, input ConfirmPaymentInput) (*models.Order, error)
	Cancel(ctx context.Context, actor types.Identity, orderID uuid.UUID, input CancelInput) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
	GetDetail(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*OrderDetail, error)
	ListForUser(ctx context.Context, actor types.Identity) ([]models.Order, error)
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Inventory  inventory.Adjuster
	History    history.Service
	Provider   payments.Provider
	Dispatcher notify.Dispatcher
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Checkout   config.CheckoutConfig
	Now        func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	inventory  inventory.Adjuster
	history    history.Service
	provider   payments.Provider
	dispatcher notify.Dispatcher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	checkout   config.CheckoutConfig
	now        func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if params.History == nil {
		return nil, fmt.Errorf("history service required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		inventory:  params.Inventory,
		history:    params.History,
		provider:   params.Provider,
		dispatcher: params.Dispatcher,
		metrics:    params.Metrics,
		logg:       params.Logger,
		checkout:   params.Checkout,
		now:        now,
	}, nil
}

func (s *service) Checkout(ctx context.Context, actor types.Identity, input CheckoutInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order contains no items")
	}
	email := strings.TrimSpace(input.Email)
	if actor.UserID == uuid.Nil && email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required for guest checkout")
	}
	if err := validateShipping(input.Shipping); err != nil {
		return nil, err
	}

	lines, stockRequests, itemsTotal, err := s.buildLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	tax, err := taxFor(itemsTotal, s.checkout.TaxRate)
	if err != nil {
		return nil, err
	}
	shipping := s.checkout.ShippingCostMinor

	order := &models.Order{
		Email:           email,
		Currency:        enums.Currency(s.checkout.Currency),
		Status:          enums.OrderStatusPendingPayment,
		ItemsTotalCents: itemsTotal,
		ShippingCents:   shipping,
		TaxCents:        tax,
		TotalCents:      itemsTotal + shipping,
		ShippingName:    input.Shipping.Name,
		ShippingStreet:  input.Shipping.Street,
		ShippingCity:    input.Shipping.City,
		ShippingZip:     input.Shipping.Zip,
		ShippingCountry: input.Shipping.Country,
	}
	if actor.UserID != uuid.Nil {
		userID := actor.UserID
		order.UserID = &userID
	}

	start := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := s.inventory.Decrement(ctx, tx, stockRequests); err != nil {
			return err
		}

		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		order.OrderNumber = number

		if _, err := repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := repo.CreateItems(ctx, lines); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}

		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID: order.ID,
			Status:  enums.OrderStatusPendingPayment,
			Actor:   enums.ActorSystem,
			Reason:  "order placed",
			Details: types.ItemsDetails(historyLines(lines), ""),
		})
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStockInsufficient {
			s.metrics.IncStockConflict()
		}
		return nil, err
	}
	s.metrics.ObserveCheckout(s.now().Sub(start))
	s.metrics.IncTransition(enums.OrderStatusPendingPayment.String())

	order.Items = lines
	s.dispatch(ctx, notify.EventOrderPlaced, order)
	return order, nil
}

func (s *service) buildLines(ctx context.Context, items []CheckoutItemInput) ([]models.OrderItem, []inventory.StockRequest, int, error) {
	lines := make([]models.OrderItem, 0, len(items))
	requests := make([]inventory.StockRequest, 0, len(items))
	total := 0

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		product, err := s.repo.FindProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return nil, nil, 0, err
		}
		if !product.IsActive {
			return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %q is not available", product.Name))
		}

		line := models.OrderItem{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       item.Quantity,
		}

		if item.VariantID != nil {
			variant, err := s.repo.FindVariant(ctx, *item.VariantID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
				}
				return nil, nil, 0, err
			}
			if variant.ProductID != product.ID {
				return nil, nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
			}
			variantID := variant.ID
			line.VariantID = &variantID
			line.Size = variant.Size
			line.Color = variant.Color
			line.UnitPriceCents = unitPriceCents(product.PriceCents, variant.PriceCents)
		}

		total += line.UnitPriceCents * line.Quantity
		lines = append(lines, line)
		requests = append(requests, inventory.StockRequest{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			Qty:       line.Quantity,
		})
	}
	return lines, requests, total, nil
}

func (s *service) ConfirmPayment(ctx context.Context, actor types.Identity, orderID uuid.UUID, input ConfirmPaymentInput) (*models.Order, error) {
	order, err := s.loadForMutation(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q cannot be paid", order.Status))
	}

	reference, err := s.provider.Capture(ctx, payments.CaptureInput{
		SourceID:       input.SourceID,
		AmountCents:    order.TotalCents,
		Currency:       order.Currency.String(),
		OrderNumber:    order.OrderNumber,
		IdempotencyKey: fmt.Sprintf("order-%s-capture", order.ID),
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusPendingPayment, enums.OrderStatusPaid,
			map[string]any{"paid_at": now, "payment_reference": reference})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
		}
		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID:   order.ID,
			Status:    enums.OrderStatusPaid,
			Actor:     actor.Actor(),
			ActorName: actor.ActorName(),
			Reason:    "payment confirmed",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(enums.OrderStatusPaid.String())

	order.Status = enums.OrderStatusPaid
	order.PaidAt = &now
	order.PaymentReference = &reference
	s.dispatch(ctx, notify.EventOrderPaid, order)
	return order, nil
}

func (s *service) Cancel(ctx context.Context, actor types.Identity, orderID uuid.UUID, input CancelInput) (*models.Order, error) {
	order, err := s.loadForMutation(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q cannot be cancelled", order.Status))
	}

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "order cancelled"
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusPendingPayment, enums.OrderStatusCancelled,
			map[string]any{"is_cancelled": true, "cancelled_at": now})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer cancellable")
		}
		if err := s.inventory.Restock(ctx, tx, stockRequestsFor(order.Items)); err != nil {
			return err
		}
		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID:   order.ID,
			Status:    enums.OrderStatusCancelled,
			Actor:     actor.Actor(),
			ActorName: actor.ActorName(),
			Reason:    reason,
			Details:   types.ItemsDetails(historyLines(order.Items), ""),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(enums.OrderStatusCancelled.String())

	order.Status = enums.OrderStatusCancelled
	order.IsCancelled = true
	order.CancelledAt = &now
	s.dispatch(ctx, notify.EventOrderCancelled, order)
	return order, nil
}

// Expire moves a stale pending order to expired and restores its stock. It
// reports false without error when the order already left pending_payment.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return false, err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return false, nil
	}

	expired := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusPendingPayment, enums.OrderStatusExpired, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		expired = true
		if err := s.inventory.Restock(ctx, tx, stockRequestsFor(order.Items)); err != nil {
			return err
		}
		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID: order.ID,
			Status:  enums.OrderStatusExpired,
			Actor:   enums.ActorSystem,
			Reason:  "order expired after payment window elapsed",
			Details: types.ItemsDetails(historyLines(order.Items), ""),
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.metrics.IncTransition(enums.OrderStatusExpired.String())
		order.Status = enums.OrderStatusExpired
		s.dispatch(ctx, notify.EventOrderExpired, order)
	}
	return expired, nil
}

func (s *service) GetDetail(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.loadForRead(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return DetailFor(*order), nil
}

func (s *service) ListForUser(ctx context.Context, actor types.Identity) ([]models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return s.repo.ListByUser(ctx, actor.UserID)
}

// loadForRead hides orders from non-owners entirely. A 403 would confirm the
// order exists, so reads return not-found instead.
func (s *service) loadForRead(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if !actor.IsAdmin() && !order.BelongsTo(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) loadForMutation(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if !actor.IsAdmin() && !order.BelongsTo(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order, nil
}

func (s *service) dispatch(ctx context.Context, eventType string, order *models.Order) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Dispatch(ctx, notify.Event{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Email:       order.Email,
		OccurredAt:  s.now().UTC(),
	})
}

func validateShipping(addr ShippingAddressInput) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", addr.Name},
		{"street", addr.Street},
		{"city", addr.City},
		{"zip", addr.Zip},
		{"country", addr.Country},
	} {
		if strings.TrimSpace(field.value) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("shipping %s is required", field.name))
		}
	}
	return nil
}

func historyLines(items []models.OrderItem) []types.HistoryLine {
	lines := make([]types.HistoryLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, types.HistoryLine{
			Name:     item.Name,
			Quantity: item.Quantity,
			Variant:  variantLabel(item),
		})
	}
	return lines
}

func variantLabel(item models.OrderItem) *string {
	size := ""
	if item.Size != nil {
		size = *item.Size
	}
	color := ""
	if item.Color != nil {
		color = *item.Color
	}
	return types.HistoryVariantLabel(size, color)
}

func stockRequestsFor(items []models.OrderItem) []inventory.StockRequest {
	requests := make([]inventory.StockRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, inventory.StockRequest{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Qty:       item.Quantity,
		})
	}
	return requests
}
