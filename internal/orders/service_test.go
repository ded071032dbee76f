package orders

import (
	"context"
	"io"
	"testing"
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
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

type stubRepo struct {
	orders      map[uuid.UUID]*models.Order
	products    map[uuid.UUID]*models.Product
	variants    map[uuid.UUID]*models.ProductVariant
	itemUpdates map[uuid.UUID]map[string]any
	transitions []string
	nextNumber  int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		orders:      map[uuid.UUID]*models.Order{},
		products:    map[uuid.UUID]*models.Product{},
		variants:    map[uuid.UUID]*models.ProductVariant{},
		itemUpdates: map[uuid.UUID]map[string]any{},
		nextNumber:  1000,
	}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubRepo) CreateItems(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if order, ok := s.orders[items[i].OrderID]; ok {
			order.Items = append(order.Items, items[i])
		}
	}
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubRepo) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order.Items, nil
}

func (s *stubRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.UserID != nil && *order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubRepo) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.Status == enums.OrderStatusPendingPayment && order.CreatedAt.Before(cutoff) {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubRepo) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	s.transitions = append(s.transitions, from.String()+">"+to.String())
	if cancelled, ok := updates["is_cancelled"].(bool); ok {
		order.IsCancelled = cancelled
	}
	return true, nil
}

func (s *stubRepo) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	s.itemUpdates[itemID] = updates
	for _, order := range s.orders {
		for i := range order.Items {
			if order.Items[i].ID != itemID {
				continue
			}
			if v, ok := updates["quantity_returned"].(int); ok {
				order.Items[i].QuantityReturned = v
			}
			if v, ok := updates["quantity_return_requested"].(int); ok {
				order.Items[i].QuantityReturnRequested = v
			}
		}
	}
	return nil
}

func (s *stubRepo) AddReturnRequested(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	for _, order := range s.orders {
		for i := range order.Items {
			item := &order.Items[i]
			if item.ID != itemID {
				continue
			}
			if item.QuantityReturned+item.QuantityReturnRequested+qty > item.Quantity {
				return false, nil
			}
			item.QuantityReturnRequested += qty
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) SettleReturn(ctx context.Context, itemID uuid.UUID, acceptedQty int) (bool, error) {
	for _, order := range s.orders {
		for i := range order.Items {
			item := &order.Items[i]
			if item.ID != itemID {
				continue
			}
			if item.QuantityReturned+acceptedQty > item.Quantity {
				return false, nil
			}
			item.QuantityReturned += acceptedQty
			item.QuantityReturnRequested = 0
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := s.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return product, nil
}

func (s *stubRepo) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	variant, ok := s.variants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return variant, nil
}

func (s *stubRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	s.nextNumber++
	return s.nextNumber, nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubInventory struct {
	decremented  []inventory.StockRequest
	restocked    []inventory.StockRequest
	decrementErr error
}

func (s *stubInventory) Decrement(ctx context.Context, tx *gorm.DB, requests []inventory.StockRequest) error {
	if s.decrementErr != nil {
		return s.decrementErr
	}
	s.decremented = append(s.decremented, requests...)
	return nil
}

func (s *stubInventory) Restock(ctx context.Context, tx *gorm.DB, requests []inventory.StockRequest) error {
	s.restocked = append(s.restocked, requests...)
	return nil
}

type stubHistory struct {
	entries []history.RecordEntryInput
}

func (s *stubHistory) Record(ctx context.Context, tx *gorm.DB, input history.RecordEntryInput) (*models.OrderHistory, error) {
	s.entries = append(s.entries, input)
	return &models.OrderHistory{ID: uuid.New(), OrderID: input.OrderID}, nil
}

func (s *stubHistory) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error) {
	return nil, nil
}

type stubProvider struct {
	captured   []payments.CaptureInput
	refunded   []payments.RefundInput
	captureErr error
}

func (s *stubProvider) Capture(ctx context.Context, input payments.CaptureInput) (string, error) {
	if s.captureErr != nil {
		return "", s.captureErr
	}
	s.captured = append(s.captured, input)
	return "pay-ref-1", nil
}

func (s *stubProvider) Refund(ctx context.Context, input payments.RefundInput) (string, error) {
	s.refunded = append(s.refunded, input)
	return "refund-ref-1", nil
}

type stubDispatcher struct {
	events []notify.Event
}

func (s *stubDispatcher) Dispatch(ctx context.Context, event notify.Event) error {
	s.events = append(s.events, event)
	return nil
}

type serviceFixture struct {
	repo       *stubRepo
	inv        *stubInventory
	hist       *stubHistory
	provider   *stubProvider
	dispatcher *stubDispatcher
	svc        Service
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:       newStubRepo(),
		inv:        &stubInventory{},
		hist:       &stubHistory{},
		provider:   &stubProvider{},
		dispatcher: &stubDispatcher{},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo:       f.repo,
		Tx:         stubTx{},
		Inventory:  f.inv,
		History:    f.hist,
		Provider:   f.provider,
		Dispatcher: f.dispatcher,
		Logger:     logg,
		Checkout: config.CheckoutConfig{
			TaxRate:           "0.19",
			ShippingCostMinor: 500,
			Currency:          "EUR",
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *serviceFixture) seedProduct(price, stock int) *models.Product {
	product := &models.Product{ID: uuid.New(), Name: "Linen Shirt", Slug: "linen-shirt", PriceCents: price, Stock: stock, IsActive: true}
	f.repo.products[product.ID] = product
	return product
}

func (f *serviceFixture) seedVariant(productID uuid.UUID, price *int, stock int) *models.ProductVariant {
	size, color := "M", "black"
	variant := &models.ProductVariant{ID: uuid.New(), ProductID: productID, Size: &size, Color: &color, PriceCents: price, Stock: stock}
	f.repo.variants[variant.ID] = variant
	return variant
}

func customer() types.Identity {
	return types.Identity{UserID: uuid.New(), Role: enums.MemberRoleCustomer, Name: "Robin"}
}

func admin() types.Identity {
	return types.Identity{UserID: uuid.New(), Role: enums.MemberRoleAdmin, Name: "Dana"}
}

func validShipping() ShippingAddressInput {
	return ShippingAddressInput{Name: "Robin Vega", Street: "Calle Mayor 1", City: "Madrid", Zip: "28013", Country: "ES"}
}

func TestCheckoutComputesTotalsAndSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := customer()

	product := f.seedProduct(4500, 10)
	variantPrice := 4900
	variant := f.seedVariant(product.ID, &variantPrice, 5)

	order, err := f.svc.Checkout(ctx, actor, CheckoutInput{
		Email: "robin@example.com",
		Items: []CheckoutItemInput{
			{ProductID: product.ID, Quantity: 2},
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1},
		},
		Shipping: validShipping(),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", order.Status)
	}
	wantItems := 2*4500 + 4900
	if order.ItemsTotalCents != wantItems {
		t.Fatalf("items total = %d, want %d", order.ItemsTotalCents, wantItems)
	}
	// total excludes the informational tax
	if order.TotalCents != wantItems+500 {
		t.Fatalf("total = %d, want %d", order.TotalCents, wantItems+500)
	}
	// 19% of 13900 = 2641
	if order.TaxCents != 2641 {
		t.Fatalf("tax = %d, want 2641", order.TaxCents)
	}
	if order.OrderNumber == 0 {
		t.Fatal("expected an order number")
	}

	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	line := order.Items[1]
	if line.UnitPriceCents != 4900 || line.Size == nil || *line.Size != "M" {
		t.Fatalf("variant snapshot not applied: %+v", line)
	}

	if len(f.inv.decremented) != 2 {
		t.Fatalf("expected 2 stock decrements, got %d", len(f.inv.decremented))
	}
	if len(f.hist.entries) != 1 || f.hist.entries[0].Reason != "order placed" {
		t.Fatalf("unexpected history entries: %+v", f.hist.entries)
	}
	if f.hist.entries[0].Actor != enums.ActorSystem {
		t.Fatalf("expected system actor, got %s", f.hist.entries[0].Actor)
	}
	if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].Type != notify.EventOrderPlaced {
		t.Fatalf("unexpected events: %+v", f.dispatcher.events)
	}
}

func TestCheckoutGuestRequiresEmail(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(4500, 10)

	_, err := f.svc.Checkout(context.Background(), types.Identity{}, CheckoutInput{
		Items:    []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		Shipping: validShipping(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutVariantMismatch(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(4500, 10)
	other := f.seedProduct(900, 10)
	variant := f.seedVariant(other.ID, nil, 5)

	_, err := f.svc.Checkout(context.Background(), customer(), CheckoutInput{
		Email:    "robin@example.com",
		Items:    []CheckoutItemInput{{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1}},
		Shipping: validShipping(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutStockShortagePropagates(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(4500, 1)
	f.inv.decrementErr = pkgerrors.StockInsufficient("Linen Shirt", 2, 1)

	_, err := f.svc.Checkout(context.Background(), customer(), CheckoutInput{
		Email:    "robin@example.com",
		Items:    []CheckoutItemInput{{ProductID: product.ID, Quantity: 2}},
		Shipping: validShipping(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStockInsufficient {
		t.Fatalf("expected stock error, got %v", err)
	}
	shortage, ok := typed.Details().(pkgerrors.StockShortage)
	if !ok || shortage.Available != 1 {
		t.Fatalf("unexpected details: %+v", typed.Details())
	}
	if len(f.dispatcher.events) != 0 {
		t.Fatal("no events expected on failed checkout")
	}
}

func TestConfirmPaymentHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := customer()

	userID := actor.UserID
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: 1001,
		UserID:      &userID,
		Currency:    enums.CurrencyEUR,
		Status:      enums.OrderStatusPendingPayment,
		TotalCents:  9500,
	}
	f.repo.orders[order.ID] = order

	updated, err := f.svc.ConfirmPayment(ctx, actor, order.ID, ConfirmPaymentInput{SourceID: "cnon:ok"})
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if updated.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", updated.Status)
	}
	if updated.PaymentReference == nil || *updated.PaymentReference != "pay-ref-1" {
		t.Fatalf("payment reference not stored: %+v", updated.PaymentReference)
	}
	if len(f.provider.captured) != 1 || f.provider.captured[0].AmountCents != 9500 {
		t.Fatalf("unexpected captures: %+v", f.provider.captured)
	}
	if len(f.hist.entries) != 1 || f.hist.entries[0].Reason != "payment confirmed" {
		t.Fatalf("unexpected history: %+v", f.hist.entries)
	}
	if f.hist.entries[0].Actor != enums.ActorUser {
		t.Fatalf("expected user actor, got %s", f.hist.entries[0].Actor)
	}
	if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].Type != notify.EventOrderPaid {
		t.Fatalf("unexpected events: %+v", f.dispatcher.events)
	}
}

func TestConfirmPaymentWrongState(t *testing.T) {
	f := newFixture(t)
	actor := customer()
	userID := actor.UserID
	order := &models.Order{ID: uuid.New(), UserID: &userID, Status: enums.OrderStatusPaid}
	f.repo.orders[order.ID] = order

	_, err := f.svc.ConfirmPayment(context.Background(), actor, order.ID, ConfirmPaymentInput{SourceID: "cnon:ok"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.provider.captured) != 0 {
		t.Fatal("no capture expected")
	}
}

func TestConfirmPaymentForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	order := &models.Order{ID: uuid.New(), UserID: &ownerID, Status: enums.OrderStatusPendingPayment}
	f.repo.orders[order.ID] = order

	_, err := f.svc.ConfirmPayment(context.Background(), customer(), order.ID, ConfirmPaymentInput{SourceID: "cnon:ok"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancelForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	order := &models.Order{ID: uuid.New(), UserID: &ownerID, Status: enums.OrderStatusPendingPayment}
	f.repo.orders[order.ID] = order

	_, err := f.svc.Cancel(context.Background(), customer(), order.ID, CancelInput{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if f.repo.orders[order.ID].Status != enums.OrderStatusPendingPayment {
		t.Fatal("order state must not change")
	}
}

func TestCancelRestocksAndRecords(t *testing.T) {
	f := newFixture(t)
	actor := customer()
	userID := actor.UserID
	order := &models.Order{
		ID:     uuid.New(),
		UserID: &userID,
		Status: enums.OrderStatusPendingPayment,
		Items: []models.OrderItem{
			{ID: uuid.New(), ProductID: uuid.New(), Name: "Linen Shirt", Quantity: 2},
		},
	}
	f.repo.orders[order.ID] = order

	updated, err := f.svc.Cancel(context.Background(), actor, order.ID, CancelInput{Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled || !updated.IsCancelled {
		t.Fatalf("unexpected order state: %+v", updated)
	}
	if len(f.inv.restocked) != 1 || f.inv.restocked[0].Qty != 2 {
		t.Fatalf("expected restock of 2, got %+v", f.inv.restocked)
	}
	if len(f.hist.entries) != 1 || f.hist.entries[0].Reason != "changed my mind" {
		t.Fatalf("unexpected history: %+v", f.hist.entries)
	}
	if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].Type != notify.EventOrderCancelled {
		t.Fatalf("unexpected events: %+v", f.dispatcher.events)
	}
}

func TestCancelWrongState(t *testing.T) {
	f := newFixture(t)
	actor := customer()
	userID := actor.UserID
	order := &models.Order{ID: uuid.New(), UserID: &userID, Status: enums.OrderStatusReturned}
	f.repo.orders[order.ID] = order

	_, err := f.svc.Cancel(context.Background(), actor, order.ID, CancelInput{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := &models.Order{
		ID:     uuid.New(),
		Status: enums.OrderStatusPendingPayment,
		Items: []models.OrderItem{
			{ID: uuid.New(), ProductID: uuid.New(), Name: "Linen Shirt", Quantity: 1},
		},
	}
	paid := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid}
	f.repo.orders[pending.ID] = pending
	f.repo.orders[paid.ID] = paid

	ok, err := f.svc.Expire(ctx, pending.ID)
	if err != nil || !ok {
		t.Fatalf("expire pending: ok=%v err=%v", ok, err)
	}
	if len(f.inv.restocked) != 1 {
		t.Fatalf("expected restock, got %+v", f.inv.restocked)
	}
	if len(f.hist.entries) != 1 || f.hist.entries[0].Actor != enums.ActorSystem {
		t.Fatalf("unexpected history: %+v", f.hist.entries)
	}

	ok, err = f.svc.Expire(ctx, paid.ID)
	if err != nil {
		t.Fatalf("expire paid: %v", err)
	}
	if ok {
		t.Fatal("paid order must not expire")
	}
}

func TestGetDetailProjections(t *testing.T) {
	f := newFixture(t)
	actor := customer()
	userID := actor.UserID

	cases := []struct {
		status          enums.OrderStatus
		cancelled       bool
		wantPayment     enums.PaymentStatus
		wantFulfillment enums.FulfillmentStatus
	}{
		{enums.OrderStatusPendingPayment, false, enums.PaymentStatusPending, enums.FulfillmentStatusUnfulfilled},
		{enums.OrderStatusPaid, false, enums.PaymentStatusPaid, enums.FulfillmentStatusFulfilled},
		{enums.OrderStatusReturnRequested, false, enums.PaymentStatusPaid, enums.FulfillmentStatusFulfilled},
		{enums.OrderStatusReturned, false, enums.PaymentStatusRefunded, enums.FulfillmentStatusReturned},
		{enums.OrderStatusCancelled, true, enums.PaymentStatusVoid, enums.FulfillmentStatusVoid},
		{enums.OrderStatusExpired, false, enums.PaymentStatusVoid, enums.FulfillmentStatusVoid},
	}
	for _, tc := range cases {
		order := &models.Order{ID: uuid.New(), UserID: &userID, Status: tc.status, IsCancelled: tc.cancelled}
		f.repo.orders[order.ID] = order

		detail, err := f.svc.GetDetail(context.Background(), actor, order.ID)
		if err != nil {
			t.Fatalf("%s: %v", tc.status, err)
		}
		if detail.PaymentStatus != tc.wantPayment {
			t.Fatalf("%s: payment = %s, want %s", tc.status, detail.PaymentStatus, tc.wantPayment)
		}
		if detail.FulfillmentStatus != tc.wantFulfillment {
			t.Fatalf("%s: fulfillment = %s, want %s", tc.status, detail.FulfillmentStatus, tc.wantFulfillment)
		}
	}
}

func TestGetDetailRefundedAmount(t *testing.T) {
	f := newFixture(t)
	actor := customer()
	userID := actor.UserID

	order := &models.Order{
		ID:     uuid.New(),
		UserID: &userID,
		Status: enums.OrderStatusPaid,
		Items: []models.OrderItem{
			{ID: uuid.New(), UnitPriceCents: 4500, Quantity: 2, QuantityReturned: 1},
			{ID: uuid.New(), UnitPriceCents: 3000, Quantity: 1, QuantityReturned: 0},
		},
	}
	f.repo.orders[order.ID] = order

	detail, err := f.svc.GetDetail(context.Background(), actor, order.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.RefundedAmountCents != 4500 {
		t.Fatalf("refunded = %d, want 4500", detail.RefundedAmountCents)
	}
}

func TestGetDetailHidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	order := &models.Order{ID: uuid.New(), UserID: &ownerID, Status: enums.OrderStatusPaid}
	f.repo.orders[order.ID] = order

	_, err := f.svc.GetDetail(context.Background(), customer(), order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := f.svc.GetDetail(context.Background(), admin(), order.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}
