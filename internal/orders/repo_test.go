package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  size TEXT,
  color TEXT,
  price_cents INTEGER,
  stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL,
  user_id TEXT,
  email TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  is_cancelled INTEGER NOT NULL DEFAULT 0,
  items_total_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  shipping_name TEXT NOT NULL,
  shipping_street TEXT NOT NULL,
  shipping_city TEXT NOT NULL,
  shipping_zip TEXT NOT NULL,
  shipping_country TEXT NOT NULL,
  return_reason TEXT,
  rejection_reason TEXT,
  payment_reference TEXT,
  paid_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  name TEXT NOT NULL,
  size TEXT,
  color TEXT,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  quantity_returned INTEGER NOT NULL DEFAULT 0,
  quantity_return_requested INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func testOrder(userID *uuid.UUID) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     time.Now().UnixNano(),
		UserID:          userID,
		Email:           "robin@example.com",
		Currency:        enums.CurrencyEUR,
		Status:          enums.OrderStatusPendingPayment,
		ItemsTotalCents: 9000,
		ShippingCents:   500,
		TotalCents:      9500,
		ShippingName:    "Robin Vega",
		ShippingStreet:  "Calle Mayor 1",
		ShippingCity:    "Madrid",
		ShippingZip:     "28013",
		ShippingCountry: "ES",
	}
}

func TestCreateAndFindByID(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	userID := uuid.New()
	order := testOrder(&userID)
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	size := "M"
	items := []models.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, ProductID: uuid.New(), Name: "Linen Shirt", Size: &size, UnitPriceCents: 4500, Quantity: 2},
	}
	require.NoError(t, repo.CreateItems(ctx, items))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
	assert.Equal(t, enums.OrderStatusPendingPayment, found.Status)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Linen Shirt", found.Items[0].Name)

	_, err = repo.FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	userID := uuid.New()
	otherID := uuid.New()
	_, err := repo.Create(ctx, testOrder(&userID))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testOrder(&userID))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testOrder(&otherID))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testOrder(nil))
	require.NoError(t, err)

	orders, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestFindPendingBefore(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	stale := testOrder(nil)
	_, err := repo.Create(ctx, stale)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`UPDATE orders SET created_at = ? WHERE id = ?`,
		time.Now().Add(-11*24*time.Hour), stale.ID).Error)

	fresh := testOrder(nil)
	_, err = repo.Create(ctx, fresh)
	require.NoError(t, err)

	paidStale := testOrder(nil)
	paidStale.Status = enums.OrderStatusPaid
	_, err = repo.Create(ctx, paidStale)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`UPDATE orders SET created_at = ? WHERE id = ?`,
		time.Now().Add(-11*24*time.Hour), paidStale.ID).Error)

	pending, err := repo.FindPendingBefore(ctx, time.Now().Add(-10*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)
}

func TestTransitionStatusGuard(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	order := testOrder(nil)
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := repo.TransitionStatus(ctx, order.ID,
		enums.OrderStatusPendingPayment, enums.OrderStatusPaid,
		map[string]any{"paid_at": now})
	require.NoError(t, err)
	assert.True(t, ok)

	// losing a race reports false instead of clobbering
	ok, err = repo.TransitionStatus(ctx, order.ID,
		enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, found.Status)
	assert.NotNil(t, found.PaidAt)
}

func TestUpdateItemCounters(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	order := testOrder(nil)
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	item := models.OrderItem{ID: uuid.New(), OrderID: order.ID, ProductID: uuid.New(), Name: "Linen Shirt", UnitPriceCents: 4500, Quantity: 2}
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{item}))

	require.NoError(t, repo.UpdateItem(ctx, item.ID, map[string]any{
		"quantity_returned":         1,
		"quantity_return_requested": 0,
	}))

	items, err := repo.FindItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].QuantityReturned)
	assert.Equal(t, 0, items[0].QuantityReturnRequested)
}

func TestAddReturnRequestedIsRelativeAndBounded(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	order := testOrder(nil)
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	item := models.OrderItem{ID: uuid.New(), OrderID: order.ID, ProductID: uuid.New(), Name: "Linen Shirt", UnitPriceCents: 4500, Quantity: 3}
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{item}))

	// three one-unit bumps accumulate in the row itself
	for i := 0; i < 3; i++ {
		ok, err := repo.AddReturnRequested(ctx, item.ID, 1)
		require.NoError(t, err)
		require.True(t, ok, "bump %d", i)
	}

	items, err := repo.FindItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].QuantityReturnRequested)

	// a fourth unit would exceed the purchased quantity
	ok, err := repo.AddReturnRequested(ctx, item.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettleReturnAppliesAcceptedAndClearsPending(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	order := testOrder(nil)
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	item := models.OrderItem{ID: uuid.New(), OrderID: order.ID, ProductID: uuid.New(), Name: "Linen Shirt", UnitPriceCents: 4500, Quantity: 3}
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{item}))

	ok, err := repo.AddReturnRequested(ctx, item.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SettleReturn(ctx, item.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	items, err := repo.FindItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].QuantityReturned)
	assert.Equal(t, 0, items[0].QuantityReturnRequested)

	// accepting more than remains purchased is refused
	ok, err = repo.SettleReturn(ctx, item.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindProductAndVariant(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	productID := uuid.New()
	variantID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO products (id, name, slug, price_cents, stock, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		productID, "Linen Shirt", "linen-shirt", 4500, 10, time.Now(), time.Now(),
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO product_variants (id, product_id, size, color, price_cents, stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		variantID, productID, "M", "black", 4900, 5, time.Now(), time.Now(),
	).Error)

	product, err := repo.FindProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 4500, product.PriceCents)

	variant, err := repo.FindVariant(ctx, variantID)
	require.NoError(t, err)
	require.NotNil(t, variant.PriceCents)
	assert.Equal(t, 4900, *variant.PriceCents)
	assert.Equal(t, productID, variant.ProductID)
}
