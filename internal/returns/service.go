package returns

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
	"github.com/aurelia-commerce/storefront-backend/internal/orders"
	"github.com/aurelia-commerce/storefront-backend/internal/payments"
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

// Service runs the return workflow: customers open a request on a paid
// order, an admin accepts some or all of it or rejects it outright.
type Service interface {
	Request(ctx context.Context, actor types.Identity, orderID uuid.UUID, input RequestInput) (*models.Order, error)
	Decide(ctx context.Context, actor types.Identity, orderID uuid.UUID, input DecisionInput) (*models.Order, error)
	Reject(ctx context.Context, actor types.Identity, orderID uuid.UUID, input RejectInput) (*models.Order, error)
}

// ServiceParams configure the returns service.
type ServiceParams struct {
	Repo       orders.Repository
	Tx         txRunner
	Inventory  inventory.Adjuster
	History    history.Service
	Provider   payments.Provider
	Dispatcher notify.Dispatcher
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       orders.Repository
	tx         txRunner
	inventory  inventory.Adjuster
	history    history.Service
	provider   payments.Provider
	dispatcher notify.Dispatcher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the returns service.
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
		now:        now,
	}, nil
}

func (s *service) Request(ctx context.Context, actor types.Identity, orderID uuid.UUID, input RequestInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return request contains no items")
	}

	order, err := s.loadForMutation(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusReturnRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q cannot enter a return", order.Status))
	}

	requested, err := resolveLines(order.Items, input.Items, func(item models.OrderItem) int {
		return item.ReturnableQuantity()
	})
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(input.Reason)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range requested {
			ok, err := repo.AddReturnRequested(ctx, line.item.ID, line.qty)
			if err != nil {
				return err
			}
			if !ok {
				// a concurrent request consumed the headroom since our read
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					"item counters changed while requesting the return")
			}
		}

		updates := map[string]any{}
		if reason != "" {
			updates["return_reason"] = reason
		}
		// Re-requesting on an open request keeps the status but still takes
		// the conditional update as a concurrency guard.
		ok, err := repo.TransitionStatus(ctx, order.ID,
			order.Status, enums.OrderStatusReturnRequested, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed while requesting the return")
		}

		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID:   order.ID,
			Status:    enums.OrderStatusReturnRequested,
			Actor:     actor.Actor(),
			ActorName: actor.ActorName(),
			Reason:    "return requested",
			Details:   types.ItemsDetails(lineDetails(requested), reason),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(enums.OrderStatusReturnRequested.String())

	order.Status = enums.OrderStatusReturnRequested
	if reason != "" {
		order.ReturnReason = &reason
	}
	s.dispatch(ctx, notify.EventOrderReturnRequested, order)
	return order, nil
}

func (s *service) Decide(ctx context.Context, actor types.Identity, orderID uuid.UUID, input DecisionInput) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can decide returns")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusReturnRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q has no open return request", order.Status))
	}

	// An admin may also take back units nobody asked about, bounded by what
	// is still out with the customer.
	accepted, err := resolveLines(order.Items, input.Accepted, func(item models.OrderItem) int {
		if item.QuantityReturnRequested > 0 {
			return item.QuantityReturnRequested
		}
		return item.Quantity - item.QuantityReturned
	})
	if err != nil {
		return nil, err
	}

	acceptedByItem := map[uuid.UUID]int{}
	for _, line := range accepted {
		acceptedByItem[line.item.ID] = line.qty
	}

	// Whatever was requested but not accepted is rejected in the same ruling.
	var rejected []resolvedLine
	refundCents := 0
	returnedUnits := 0
	allReturned := true
	for _, item := range order.Items {
		acc := acceptedByItem[item.ID]
		refundCents += acc * item.UnitPriceCents
		returnedUnits += item.QuantityReturned + acc
		if remainder := item.QuantityReturnRequested - acc; remainder > 0 {
			rejected = append(rejected, resolvedLine{item: item, qty: remainder})
		}
		if item.QuantityReturned+acc < item.Quantity {
			allReturned = false
		}
	}

	newStatus := enums.OrderStatusPaid
	if allReturned {
		newStatus = enums.OrderStatusReturned
	}

	note := strings.TrimSpace(input.Note)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range order.Items {
			if item.QuantityReturnRequested == 0 && acceptedByItem[item.ID] == 0 {
				continue
			}
			ok, err := repo.SettleReturn(ctx, item.ID, acceptedByItem[item.ID])
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					"item counters changed while deciding the return")
			}
		}

		if err := s.inventory.Restock(ctx, tx, stockRequests(accepted)); err != nil {
			return err
		}

		updates := map[string]any{}
		if len(rejected) > 0 && note != "" {
			updates["rejection_reason"] = note
		}
		ok, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusReturnRequested, newStatus, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request already decided")
		}

		if len(accepted) > 0 {
			_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
				OrderID:   order.ID,
				Status:    newStatus,
				Actor:     enums.ActorAdmin,
				ActorName: actor.ActorName(),
				Reason:    "return accepted",
				Details:   types.ItemsDetails(lineDetails(accepted), note),
			})
			if err != nil {
				return err
			}
		}
		if len(rejected) > 0 {
			_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
				OrderID:   order.ID,
				Status:    newStatus,
				Actor:     enums.ActorAdmin,
				ActorName: actor.ActorName(),
				Reason:    "return rejected",
				Details:   types.ItemsDetails(lineDetails(rejected), note),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(newStatus.String())

	if refundCents > 0 {
		if err := s.refund(ctx, order, refundCents, returnedUnits); err != nil {
			return nil, err
		}
	}

	order.Status = newStatus
	s.dispatch(ctx, notify.EventOrderReturnDecided, order)
	return order, nil
}

func (s *service) Reject(ctx context.Context, actor types.Identity, orderID uuid.UUID, input RejectInput) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can decide returns")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusReturnRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q has no open return request", order.Status))
	}

	var rejected []resolvedLine
	for _, item := range order.Items {
		if item.QuantityReturnRequested > 0 {
			rejected = append(rejected, resolvedLine{item: item, qty: item.QuantityReturnRequested})
		}
	}

	reason := strings.TrimSpace(input.Reason)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range rejected {
			err := repo.UpdateItem(ctx, line.item.ID, map[string]any{
				"quantity_return_requested": 0,
			})
			if err != nil {
				return err
			}
		}

		updates := map[string]any{}
		if reason != "" {
			updates["rejection_reason"] = reason
		}
		ok, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusReturnRequested, enums.OrderStatusPaid, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request already decided")
		}

		_, err = s.history.Record(ctx, tx, history.RecordEntryInput{
			OrderID:   order.ID,
			Status:    enums.OrderStatusPaid,
			Actor:     enums.ActorAdmin,
			ActorName: actor.ActorName(),
			Reason:    "return rejected",
			Details:   types.ItemsDetails(lineDetails(rejected), reason),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(enums.OrderStatusPaid.String())

	order.Status = enums.OrderStatusPaid
	if reason != "" {
		order.RejectionReason = &reason
	}
	s.dispatch(ctx, notify.EventOrderReturnRejected, order)
	return order, nil
}

// refund runs after the decision committed. A gateway failure here leaves
// the order state final and surfaces a retryable dependency error. The key
// derives from the cumulative returned units, so re-issuing the same refund
// hits the gateway's idempotency window no matter when it runs.
func (s *service) refund(ctx context.Context, order *models.Order, amountCents, returnedUnits int) error {
	if order.PaymentReference == nil {
		s.logg.Warn(ctx, "order has no payment reference; skipping refund")
		return nil
	}
	_, err := s.provider.Refund(ctx, payments.RefundInput{
		PaymentReference: *order.PaymentReference,
		AmountCents:      amountCents,
		Currency:         order.Currency.String(),
		Reason:           "return accepted",
		IdempotencyKey:   fmt.Sprintf("order-%s-refund-%d", order.ID, returnedUnits),
	})
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"amount_cents": amountCents,
		})
		s.logg.Error(logCtx, "refund failed after return decision", err)
		return err
	}
	return nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) loadForMutation(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
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

type resolvedLine struct {
	item models.OrderItem
	qty  int
}

// resolveLines matches request lines to order items and enforces the per-line
// ceiling supplied by maxFor.
func resolveLines(items []models.OrderItem, lines []ReturnLineInput, maxFor func(models.OrderItem) int) ([]resolvedLine, error) {
	byID := map[uuid.UUID]models.OrderItem{}
	for _, item := range items {
		byID[item.ID] = item
	}

	seen := map[uuid.UUID]bool{}
	resolved := make([]resolvedLine, 0, len(lines))
	for _, line := range lines {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to this order")
		}
		if seen[line.ItemID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate item in return lines")
		}
		seen[line.ItemID] = true
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity must be positive")
		}
		if max := maxFor(item); line.Quantity > max {
			return nil, pkgerrors.ReturnQuantityExceeded(item.Name, line.Quantity, max)
		}
		resolved = append(resolved, resolvedLine{item: item, qty: line.Quantity})
	}
	return resolved, nil
}

func lineDetails(lines []resolvedLine) []types.HistoryLine {
	details := make([]types.HistoryLine, 0, len(lines))
	for _, line := range lines {
		size := ""
		if line.item.Size != nil {
			size = *line.item.Size
		}
		color := ""
		if line.item.Color != nil {
			color = *line.item.Color
		}
		details = append(details, types.HistoryLine{
			Name:     line.item.Name,
			Quantity: line.qty,
			Variant:  types.HistoryVariantLabel(size, color),
		})
	}
	return details
}

func stockRequests(lines []resolvedLine) []inventory.StockRequest {
	requests := make([]inventory.StockRequest, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, inventory.StockRequest{
			ProductID: line.item.ProductID,
			VariantID: line.item.VariantID,
			Name:      line.item.Name,
			Qty:       line.qty,
		})
	}
	return requests
}
