package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
)

// StockRequest identifies the stock row an order line draws from. VariantID
// is nil for products sold without variants.
type StockRequest struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Name      string
	Qty       int
}

// Adjuster moves stock counts inside an open transaction. Decrement is
// conditional so concurrent checkouts can never drive a row negative.
type Adjuster interface {
	Decrement(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
	Restock(ctx context.Context, tx *gorm.DB, requests []StockRequest) error
}

type adjusterImpl struct{}

// NewAdjuster exposes the default stock adjuster implementation.
func NewAdjuster() Adjuster {
	return adjusterImpl{}
}

func (adjusterImpl) Decrement(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "stock quantity must be positive")
		}
		if err := decrementOne(ctx, tx, req); err != nil {
			return err
		}
	}
	return nil
}

func decrementOne(ctx context.Context, tx *gorm.DB, req StockRequest) error {
	table, id := stockRow(req)
	res := tx.WithContext(ctx).Exec(`
		UPDATE `+table+`
		SET stock = stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock >= ?
	`, req.Qty, id, req.Qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var available int
	row := tx.WithContext(ctx).Raw(`SELECT stock FROM `+table+` WHERE id = ?`, id).Row()
	if err := row.Scan(&available); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock row not found")
	}
	return pkgerrors.StockInsufficient(req.Name, req.Qty, available)
}

func (adjusterImpl) Restock(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for restock")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			continue
		}
		table, id := stockRow(req)
		res := tx.WithContext(ctx).Exec(`
			UPDATE `+table+`
			SET stock = stock + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, req.Qty, id)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock")
		}
	}
	return nil
}

func stockRow(req StockRequest) (table string, id uuid.UUID) {
	if req.VariantID != nil {
		return "product_variants", *req.VariantID
	}
	return "products", req.ProductID
}
